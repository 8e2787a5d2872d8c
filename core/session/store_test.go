package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeClient struct {
	mu       sync.Mutex
	identity *member.Identity
	err      error
	subs     map[int]auth.Subscriber
	next     int
}

func newFakeClient(identity *member.Identity) *fakeClient {
	return &fakeClient{identity: identity, subs: make(map[int]auth.Subscriber)}
}

func (c *fakeClient) Identity(context.Context) (*member.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.err
}

func (c *fakeClient) Subscribe(fn auth.Subscriber) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *fakeClient) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeClient) emit(ev auth.Event) {
	c.mu.Lock()
	subs := make([]auth.Subscriber, 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// profileStore serves profiles, and can hold a lookup until released.
type profileStore struct {
	mu      sync.Mutex
	profs   map[string]member.Profile
	err     error
	hold    bool
	entered chan struct{}
	release chan struct{}
}

func newProfileStore(profs ...member.Profile) *profileStore {
	ps := &profileStore{profs: make(map[string]member.Profile)}
	for _, p := range profs {
		ps.profs[p.ID] = p
	}
	return ps
}

func (ps *profileStore) holdNext() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.hold = true
	ps.entered = make(chan struct{})
	ps.release = make(chan struct{})
}

func (ps *profileStore) set(prof member.Profile) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.profs[prof.ID] = prof
}

func (ps *profileStore) GetProfile(_ context.Context, id string) (member.Profile, error) {
	ps.mu.Lock()
	hold, entered, release := ps.hold, ps.entered, ps.release
	ps.hold = false
	prof, ok := ps.profs[id]
	err := ps.err
	ps.mu.Unlock()

	if hold {
		close(entered)
		<-release
	}
	if err != nil {
		return member.Profile{}, err
	}
	if !ok {
		return member.Profile{}, errors.WithMessage(core.ErrNotFound, "profile not found")
	}
	return prof, nil
}

var (
	miaIdentity = member.Identity{
		ID:        "mia",
		Email:     "mia@test.cd",
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Metadata:  member.Metadata{"name": "Mia"},
	}
	miaProfile = member.Profile{ID: "mia", Name: "Mia Wallace", Email: "mia@test.cd", Role: member.RoleMember, TotalCredits: 10}
)

func TestStore_Start(t *testing.T) {
	tests := []struct {
		name      string
		identity  *member.Identity
		clientErr error
		wantUser  string
		wantErr   bool
	}{
		{name: "signed in", identity: &miaIdentity, wantUser: "Mia Wallace"},
		{name: "signed out"},
		{name: "identity check failed", clientErr: errors.New("connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient(tt.identity)
			client.err = tt.clientErr
			st := NewStore(client, newProfileStore(miaProfile), nopLogger{})
			assert.False(t, st.Resolved())
			assert.Nil(t, st.User())

			err := st.Start(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.True(t, st.Resolved())
			if tt.wantUser == "" {
				assert.Nil(t, st.User())
				return
			}
			require.NotNil(t, st.User())
			assert.Equal(t, tt.wantUser, st.User().Name)
		})
	}
}

func TestStore_events(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(nil)
	profiles := newProfileStore(miaProfile)
	st := NewStore(client, profiles, nopLogger{})

	var changes []member.User
	signOuts := 0
	st.OnUserChange = func(usr member.User) { changes = append(changes, usr) }
	st.OnSignOut = func() { signOuts++ }
	require.NoError(t, st.Start(ctx))
	require.Nil(t, st.User())

	client.emit(auth.Event{Kind: auth.SignedIn, IdentityID: "mia", Identity: &miaIdentity})
	require.NotNil(t, st.User())
	assert.Equal(t, 10, st.User().TotalCredits)

	// a copy is handed out
	st.User().TotalCredits = 1000
	assert.Equal(t, 10, st.User().TotalCredits)

	awarded := miaProfile
	awarded.TotalCredits = 30
	profiles.set(awarded)
	client.emit(auth.Event{Kind: auth.UserUpdated, IdentityID: "mia", Identity: &miaIdentity})
	assert.Equal(t, 30, st.User().TotalCredits)

	client.emit(auth.Event{Kind: auth.SignedOut, IdentityID: "mia"})
	assert.Nil(t, st.User())
	assert.True(t, st.Resolved())
	assert.Equal(t, 1, signOuts)

	require.Len(t, changes, 2)
	assert.Equal(t, 10, changes[0].TotalCredits)
	assert.Equal(t, 30, changes[1].TotalCredits)
}

func TestStore_Refresh(t *testing.T) {
	ctx := context.Background()
	profiles := newProfileStore(miaProfile)
	st := NewStore(newFakeClient(&miaIdentity), profiles, nopLogger{})
	require.NoError(t, st.Start(ctx))

	awarded := miaProfile
	awarded.TotalCredits = 45
	profiles.set(awarded)
	require.NoError(t, st.Refresh(ctx))
	assert.Equal(t, 45, st.User().TotalCredits)

	// a failed refresh keeps the current user
	profiles.err = errors.New("connection refused")
	assert.Error(t, st.Refresh(ctx))
	require.NotNil(t, st.User())
	assert.Equal(t, 45, st.User().TotalCredits)
}

func TestStore_signOutWinsOverRefresh(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(&miaIdentity)
	profiles := newProfileStore(miaProfile)
	st := NewStore(client, profiles, nopLogger{})
	require.NoError(t, st.Start(ctx))
	require.NotNil(t, st.User())

	profiles.holdNext()
	done := make(chan error, 1)
	go func() { done <- st.Refresh(ctx) }()

	<-profiles.entered
	client.emit(auth.Event{Kind: auth.SignedOut, IdentityID: "mia"})
	close(profiles.release)

	require.NoError(t, <-done)
	assert.Nil(t, st.User(), "a refresh started before the sign-out must not restore the user")
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(&miaIdentity)
	st := NewStore(client, newProfileStore(miaProfile), nopLogger{})
	signOuts := 0
	st.OnSignOut = func() { signOuts++ }

	require.NoError(t, st.Start(ctx))
	assert.Equal(t, 1, client.subscribers())

	st.Close()
	st.Close()
	assert.Equal(t, 0, client.subscribers())

	// events arriving afterwards are ignored
	st.handle(ctx, auth.Event{Kind: auth.SignedOut, IdentityID: "mia"})
	assert.Equal(t, 0, signOuts)
	assert.NotNil(t, st.User())

	assert.Equal(t, ErrClosed, st.Refresh(ctx))
	assert.Equal(t, ErrClosed, st.Start(ctx))
}
