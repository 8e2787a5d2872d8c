package auth

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core/member"
)

// Client holds one signed-in session on the consumer side (CLI, websocket connection).
// Its subscribers only see the events that concern that session.
type Client struct {
	svc *Service

	mu     sync.Mutex
	token  string
	claims *Claims
	subs   map[int]Subscriber
	next   int
}

func NewClient(svc *Service) *Client {
	return &Client{svc: svc, subs: make(map[int]Subscriber)}
}

// NewClientWithToken resumes a session from a previously issued token.
func NewClientWithToken(svc *Service, token string) *Client {
	c := NewClient(svc)
	c.token = token
	return c
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) SignIn(ctx context.Context, email, pwd string) (member.Identity, error) {
	token, identity, err := c.svc.SignInWithPassword(ctx, email, pwd)
	if err != nil {
		return member.Identity{}, err
	}
	claims, err := c.svc.parseToken(token.Token)
	if err != nil {
		return member.Identity{}, errors.Wrap(err, "parsing issued token")
	}

	c.mu.Lock()
	c.token, c.claims = token.Token, claims
	c.mu.Unlock()

	c.emit(Event{Kind: SignedIn, IdentityID: identity.ID, SessionID: claims.ID, Identity: &identity, At: c.svc.now().UTC()})
	return identity, nil
}

// SignOut revokes the current session. It is a no-op when signed out.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token, claims := c.token, c.claims
	c.token, c.claims = "", nil
	c.mu.Unlock()

	if token == "" {
		return nil
	}
	err := c.svc.SignOut(ctx, token)

	ev := Event{Kind: SignedOut, At: c.svc.now().UTC()}
	if claims != nil {
		ev.IdentityID, ev.SessionID = claims.Subject, claims.ID
	}
	c.emit(ev)
	return err
}

// Refresh swaps the current token for a fresh one.
func (c *Client) Refresh(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return ErrInvalidToken
	}
	newToken, err := c.svc.RefreshToken(ctx, token)
	if err != nil {
		return err
	}
	claims, identity, err := c.svc.Verify(ctx, newToken.Token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.token != token { // signed out or in again meanwhile
		c.mu.Unlock()
		return nil
	}
	c.token, c.claims = newToken.Token, claims
	c.mu.Unlock()

	c.emit(Event{Kind: TokenRefreshed, IdentityID: identity.ID, SessionID: claims.ID, Identity: &identity, At: c.svc.now().UTC()})
	return nil
}

// Identity returns the identity of the current session, or nil when there is none.
// A revoked or expired session clears the client.
func (c *Client) Identity(ctx context.Context) (*member.Identity, error) {
	token := c.Token()
	if token == "" {
		return nil, nil
	}

	claims, identity, err := c.svc.Verify(ctx, token)
	if err != nil {
		if err == ErrInvalidToken {
			c.mu.Lock()
			if c.token == token {
				c.token, c.claims = "", nil
			}
			c.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}

	c.mu.Lock()
	if c.token == token {
		c.claims = claims
	}
	c.mu.Unlock()
	return &identity, nil
}

// Subscribe registers fn for the events of this client's session.
// Sign-in and refresh are reported by the client itself. Sign-outs issued elsewhere and
// user updates come from the bus.
func (c *Client) Subscribe(fn Subscriber) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	unsubBus := c.svc.Subscribe(func(ev Event) {
		if c.concerns(ev) {
			if ev.Kind == SignedOut {
				c.clear()
			}
			fn(ev)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubBus()
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) concerns(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.claims == nil || ev.IdentityID != c.claims.Subject {
		return false
	}
	switch ev.Kind {
	case SignedOut:
		return ev.SessionID == "" || ev.SessionID == c.claims.ID
	case UserUpdated:
		return true
	}
	return false
}

func (c *Client) clear() {
	c.mu.Lock()
	c.token, c.claims = "", nil
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	subs := make([]Subscriber, 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
