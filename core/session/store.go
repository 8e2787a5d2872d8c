// Package session holds the signed-in user of one running client.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
)

var ErrClosed = errors.New("session store is closed")

type (
	// AuthClient is the client side of the authentication service.
	AuthClient interface {
		Identity(ctx context.Context) (*member.Identity, error)
		Subscribe(fn auth.Subscriber) (unsubscribe func())
	}

	// Store holds the current User. It is only mutated by auth events and Refresh.
	// A sign-out always wins: a Refresh started before it never restores the user.
	Store struct {
		client   AuthClient
		resolver *member.Resolver
		profiles member.ProfileReader
		logger   core.Logger

		// OnSignOut is called after the user is cleared by a sign-out event, eg. to go to the login page.
		OnSignOut func()
		// OnUserChange is called with a copy of the user after an auth event replaced it.
		OnUserChange func(usr member.User)

		mu       sync.RWMutex
		identity *member.Identity
		usr      *member.User
		resolved bool
		epoch    uint64 // bumped on every sign-out
		closed   bool
		unsub    func()
	}
)

func NewStore(client AuthClient, profiles member.ProfileReader, logger core.Logger) *Store {
	return &Store{
		client:   client,
		resolver: member.NewResolver(profiles, logger),
		profiles: profiles,
		logger:   logger,
	}
}

// Start subscribes to auth events and resolves the initial identity.
// The store is resolved once Start returns, even on error.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	epoch := s.epoch
	s.mu.Unlock()

	unsub := s.client.Subscribe(func(ev auth.Event) { s.handle(context.Background(), ev) })

	identity, err := s.client.Identity(ctx)
	var usr *member.User
	if err == nil && identity != nil {
		u := s.resolver.Resolve(ctx, *identity)
		usr = &u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsub()
		return ErrClosed
	}
	s.unsub = unsub
	if !s.resolved && s.epoch == epoch {
		s.identity, s.usr = identity, usr
	}
	s.resolved = true
	if err != nil {
		return errors.Wrap(err, "getting current identity")
	}
	return nil
}

// Close unsubscribes from auth events. Callbacks arriving afterwards are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// Resolved reports whether the initial identity check completed.
func (s *Store) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *member.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.usr == nil {
		return nil
	}
	usr := *s.usr
	return &usr
}

// Refresh re-fetches the profile of the current identity and replaces the user.
// On failure the current user is kept and the error returned.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	identity, epoch, closed := s.identity, s.epoch, s.closed
	s.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if identity == nil {
		return nil
	}

	prof, err := s.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	usr := member.FromProfile(prof)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch || s.identity == nil || s.identity.ID != identity.ID {
		return nil // signed out or switched meanwhile
	}
	s.usr = &usr
	return nil
}

func (s *Store) handle(ctx context.Context, ev auth.Event) {
	switch ev.Kind {
	case auth.SignedOut:
		s.signOut()
	case auth.SignedIn, auth.TokenRefreshed, auth.UserUpdated:
		s.resolve(ctx, ev)
	}
}

func (s *Store) signOut() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.epoch++
	s.identity, s.usr = nil, nil
	s.resolved = true
	onSignOut := s.OnSignOut
	s.mu.Unlock()

	if onSignOut != nil {
		onSignOut()
	}
}

func (s *Store) resolve(ctx context.Context, ev auth.Event) {
	s.mu.RLock()
	epoch, closed := s.epoch, s.closed
	s.mu.RUnlock()
	if closed || ev.Identity == nil {
		return
	}

	identity := *ev.Identity
	usr := s.resolver.Resolve(ctx, identity)

	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.identity, s.usr = &identity, &usr
	s.resolved = true
	onChange := s.OnUserChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(usr)
	}
}
