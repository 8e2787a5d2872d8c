package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
	emailsvc "github.com/trezcool/clubhub/services/email"
	logsvc "github.com/trezcool/clubhub/services/logger"
	sqlxrepos "github.com/trezcool/clubhub/storage/database/sqlx"
	testutil "github.com/trezcool/clubhub/tests"
)

type repos struct {
	identities auth.Repository
	profiles   member.Repository
	portal     portal.Repository
}

func setup(t *testing.T) repos {
	t.Helper()
	db := testutil.PrepareDB(t)
	return repos{
		identities: sqlxrepos.NewIdentityRepository(db, time.Second),
		profiles:   sqlxrepos.NewProfileRepository(db, time.Second),
		portal:     sqlxrepos.NewPortalRepository(db, time.Second),
	}
}

func TestIdentityRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	cred := auth.Credentials{
		Identity: member.Identity{
			ID:        uuid.NewString(),
			Email:     "mia@test.cd",
			CreatedAt: now,
			Metadata:  member.Metadata{"name": "Mia", "role": "club_head"},
		},
	}
	require.NoError(t, cred.SetPassword(testutil.Password))
	_, err := r.identities.CreateIdentity(ctx, cred)
	require.NoError(t, err)

	dup := cred
	dup.Identity.ID = uuid.NewString()
	_, err = r.identities.CreateIdentity(ctx, dup)
	assert.Equal(t, core.ErrConflict, errors.Cause(err), "email taken")

	got, err := r.identities.GetIdentityByEmail(ctx, "mia@test.cd")
	require.NoError(t, err)
	assert.Equal(t, cred.Identity.ID, got.Identity.ID)
	assert.Equal(t, "Mia", got.Identity.Metadata.String("name"))
	assert.True(t, got.Identity.CreatedAt.Equal(now))
	assert.NoError(t, got.CheckPassword(testutil.Password))

	_, err = r.identities.GetIdentity(ctx, "nope")
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	require.NoError(t, r.identities.SetLastSignIn(ctx, cred.Identity.ID, now))
	got, err = r.identities.GetIdentity(ctx, cred.Identity.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSignIn.Equal(now))

	require.NoError(t, got.SetPassword("N3w!Passw0rd$"))
	require.NoError(t, r.identities.UpdatePassword(ctx, cred.Identity.ID, got.PasswordHash))
	got, err = r.identities.GetIdentity(ctx, cred.Identity.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("N3w!Passw0rd$"))

	// sessions
	newSession := func() auth.Session {
		sess := auth.Session{ID: uuid.NewString(), IdentityID: cred.Identity.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, r.identities.CreateSession(ctx, sess))
		return sess
	}
	first, second := newSession(), newSession()

	sess, err := r.identities.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.Identity.ID, sess.IdentityID)
	assert.True(t, sess.ExpiresAt.Equal(first.ExpiresAt))

	require.NoError(t, r.identities.DeleteSession(ctx, first.ID))
	require.NoError(t, r.identities.DeleteSession(ctx, first.ID), "deleting twice")
	_, err = r.identities.GetSession(ctx, first.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	newSession()
	require.NoError(t, r.identities.DeleteIdentitySessions(ctx, cred.Identity.ID))
	_, err = r.identities.GetSession(ctx, second.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	err = r.identities.CreateSession(ctx, auth.Session{ID: uuid.NewString(), IdentityID: "nope", IssuedAt: now, ExpiresAt: now})
	assert.Error(t, err, "unknown identity")
}

func TestProfileRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	ada := testutil.CreateMember(t, r.identities, r.profiles, "Ada Lovelace", "ada@test.cd", member.RoleAdmin, true)
	hank := testutil.CreateMember(t, r.identities, r.profiles, "Hank Head", "hank@test.cd", member.RoleClubHead, false)
	mia := testutil.CreateMember(t, r.identities, r.profiles, "Mia Wallace", "mia@test.cd", member.RoleMember, false)

	got, err := r.profiles.GetProfile(ctx, ada.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, member.RoleAdmin, got.Role)
	assert.Empty(t, got.ClubID)

	_, err = r.profiles.GetProfile(ctx, "nope")
	assert.Equal(t, member.ErrProfileNotFound, err)

	_, err = r.profiles.CreateProfile(ctx, mia)
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	updated, err := r.profiles.UpdateProfileDetails(ctx, mia.ID, member.ProfileDetails{Name: "Mia W.", City: "Goma"})
	require.NoError(t, err)
	assert.Equal(t, "Mia W.", updated.Name)
	assert.Equal(t, "Goma", updated.City)
	assert.Equal(t, member.RoleMember, updated.Role)

	_, err = r.profiles.UpdateProfileDetails(ctx, "nope", member.ProfileDetails{Name: "Nobody"})
	assert.Equal(t, member.ErrProfileNotFound, err)

	ids := func(profs []member.Profile) []string {
		out := make([]string, 0, len(profs))
		for _, p := range profs {
			out = append(out, p.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		filter   *member.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all, by name", want: []string{ada.ID, hank.ID, mia.ID}},
		{name: "by email desc", ordering: []core.DBOrdering{{Field: "email"}}, want: []string{mia.ID, hank.ID, ada.ID}},
		{name: "search name", filter: &member.QueryFilter{Search: "MIA W"}, want: []string{mia.ID}},
		{name: "search no match", filter: &member.QueryFilter{Search: "wallace"}, want: []string{}},
		{name: "search email", filter: &member.QueryFilter{Search: "HANK@"}, want: []string{hank.ID}},
		{name: "roles", filter: &member.QueryFilter{Roles: []string{"admin", "club_head"}}, want: []string{ada.ID, hank.ID}},
		{name: "unknown ordering field ignored", ordering: []core.DBOrdering{{Field: "password"}}, want: []string{ada.ID, hank.ID, mia.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profs, err := r.profiles.QueryProfiles(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(profs))
		})
	}
}

func TestPortalRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	ada := testutil.CreateMember(t, r.identities, r.profiles, "Ada Lovelace", "ada@test.cd", member.RoleAdmin, true)
	mia := testutil.CreateMember(t, r.identities, r.profiles, "Mia Wallace", "mia@test.cd", member.RoleMember, false)

	// chapters & clubs
	chapter, err := r.portal.CreateChapter(ctx, portal.Chapter{ID: uuid.NewString(), Name: "Kinshasa", CreatedBy: ada.ID, CreatedAt: now})
	require.NoError(t, err)
	_, err = r.portal.CreateChapter(ctx, portal.Chapter{ID: uuid.NewString(), Name: "Kinshasa", CreatedBy: ada.ID, CreatedAt: now})
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	club, err := r.portal.CreateClub(ctx, portal.Club{ID: uuid.NewString(), Name: "Robotics", ChapterID: chapter.ID, CreatedBy: ada.ID, CreatedAt: now})
	require.NoError(t, err)
	_, err = r.portal.CreateClub(ctx, portal.Club{ID: uuid.NewString(), Name: "Chess", ChapterID: "nope", CreatedBy: ada.ID, CreatedAt: now})
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	clubs, err := r.portal.ListClubs(ctx, chapter.ID)
	require.NoError(t, err)
	require.Len(t, clubs, 1)
	assert.Equal(t, club.ID, clubs[0].ID)
	clubs, err = r.portal.ListClubs(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, clubs)

	// membership
	require.NoError(t, r.portal.UpdateMembership(ctx, mia.ID, club.ID, chapter.ID, now))
	require.NoError(t, r.portal.AssignClubHead(ctx, mia.ID, club.ID, now.Add(time.Minute)))
	prof, err := r.profiles.GetProfile(ctx, mia.ID)
	require.NoError(t, err)
	assert.Equal(t, member.RoleClubHead, prof.Role)
	assert.Equal(t, club.ID, prof.ClubID)
	assert.Equal(t, chapter.ID, prof.ChapterID)

	members, err := r.portal.ListClubMembers(ctx, club.ID)
	require.NoError(t, err)
	require.Len(t, members, 1, "a membership is added once")
	assert.True(t, members[0].JoinedAt.Equal(now))

	assert.Equal(t, core.ErrNotFound, errors.Cause(r.portal.AssignClubHead(ctx, "nope", club.ID, now)))

	// events
	evt, err := r.portal.CreateEvent(ctx, portal.Event{
		ID: uuid.NewString(), Name: "Hackathon", Description: "Build things", Location: "Main hall",
		Date: now.Add(48 * time.Hour), Credits: 20, CreatedBy: ada.ID, CreatedAt: now,
	})
	require.NoError(t, err)
	past, err := r.portal.CreateEvent(ctx, portal.Event{
		ID: uuid.NewString(), Name: "Kickoff", Description: "First meeting", Location: "Main hall",
		Date: now.Add(-48 * time.Hour), Credits: 5, CreatedBy: ada.ID, CreatedAt: now,
	})
	require.NoError(t, err)

	events, err := r.portal.ListEvents(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, past.ID, events[0].ID, "soonest first")
	events, err = r.portal.ListEvents(ctx, now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)

	// participants & attendance
	newTx := func(amount int, eventID string) portal.CreditTransaction {
		return portal.CreditTransaction{
			ID: uuid.NewString(), RecipientID: mia.ID, AwardedBy: ada.ID, Amount: amount,
			Reason: "Attended", EventID: eventID, CreatedAt: time.Now().UTC(),
		}
	}

	_, err = r.portal.MarkAttendance(ctx, evt.ID, mia.ID, newTx(20, evt.ID))
	assert.Equal(t, core.ErrNotFound, errors.Cause(err), "not registered")

	require.NoError(t, r.portal.AddParticipant(ctx, evt.ID, mia.ID, now))
	err = r.portal.AddParticipant(ctx, evt.ID, mia.ID, now)
	assert.Equal(t, core.ErrConflict, errors.Cause(err))
	err = r.portal.AddParticipant(ctx, evt.ID, "nope", now)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	awarded, err := r.portal.MarkAttendance(ctx, evt.ID, mia.ID, newTx(20, evt.ID))
	require.NoError(t, err)
	assert.True(t, awarded)
	awarded, err = r.portal.MarkAttendance(ctx, evt.ID, mia.ID, newTx(20, evt.ID))
	require.NoError(t, err)
	assert.False(t, awarded, "credits are awarded once")

	parts, err := r.portal.ListParticipants(ctx, evt.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].Attended)
	assert.Equal(t, "Mia Wallace", parts[0].Name)

	// credits
	time.Sleep(10 * time.Millisecond)
	bonus, err := r.portal.AppendCredit(ctx, newTx(5, ""))
	require.NoError(t, err)
	_, err = r.portal.AppendCredit(ctx, portal.CreditTransaction{ID: uuid.NewString(), RecipientID: "nope", Amount: 5, Reason: "Bonus", CreatedAt: now})
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	history, err := r.portal.ListCredits(ctx, mia.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, bonus.ID, history[0].ID, "newest first")
	assert.Empty(t, history[0].EventID)
	assert.Equal(t, evt.ID, history[1].EventID)

	prof, err = r.profiles.GetProfile(ctx, mia.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, prof.TotalCredits)
}

func TestPortalRepository_concurrentAssignClubHead(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	ada := testutil.CreateMember(t, r.identities, r.profiles, "Ada Lovelace", "ada@test.cd", member.RoleAdmin, true)
	mia := testutil.CreateMember(t, r.identities, r.profiles, "Mia Wallace", "mia@test.cd", member.RoleMember, false)
	chapter, err := r.portal.CreateChapter(ctx, portal.Chapter{ID: uuid.NewString(), Name: "Kinshasa", CreatedBy: ada.ID, CreatedAt: now})
	require.NoError(t, err)
	club, err := r.portal.CreateClub(ctx, portal.Club{ID: uuid.NewString(), Name: "Robotics", ChapterID: chapter.ID, CreatedBy: ada.ID, CreatedAt: now})
	require.NoError(t, err)

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.portal.AssignClubHead(ctx, mia.ID, club.ID, now)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	members, err := r.portal.ListClubMembers(ctx, club.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

type staticActor struct{ usr member.User }

func (a staticActor) User() *member.User {
	usr := a.usr
	return &usr
}
func (staticActor) Refresh(context.Context) error { return nil }

type nopNotifier struct{}

func (nopNotifier) NotifyUserUpdated(context.Context, string) error { return nil }

func TestBackendUnavailable(t *testing.T) {
	ctx := context.Background()
	logger := logsvc.NewLoggerMock()
	newFacade := func(repo portal.Repository, profiles member.Repository) *portal.Service {
		mailSvc := emailsvc.NewConsoleServiceMock(testutil.Config(), logger)
		return portal.NewService(repo, profiles, nopNotifier{}, nil, mailSvc, testutil.NewValidator(), logger)
	}
	eventInput := portal.NewEvent{
		Name:        "Hackathon",
		Description: "Build things for a weekend",
		Date:        time.Now().Add(48 * time.Hour),
		Credits:     10,
		Location:    "Main hall",
	}

	t.Run("database closed", func(t *testing.T) {
		db := testutil.PrepareDB(t)
		identities := sqlxrepos.NewIdentityRepository(db, time.Second)
		profiles := sqlxrepos.NewProfileRepository(db, time.Second)
		head := testutil.CreateMember(t, identities, profiles, "Hank Head", "hank@test.cd", member.RoleClubHead, false)
		svc := newFacade(sqlxrepos.NewPortalRepository(db, time.Second), profiles)
		require.NoError(t, db.Close())

		_, err := svc.CreateEvent(ctx, staticActor{member.FromProfile(head)}, eventInput)
		require.Error(t, err)
		assert.Equal(t, core.ErrBackendUnavailable, errors.Cause(err))

		_, err = svc.ListChapters(ctx, staticActor{member.FromProfile(head)})
		assert.Equal(t, core.ErrBackendUnavailable, errors.Cause(err))

		// identity resolution degrades instead of failing
		usr := member.NewResolver(profiles, logger).Resolve(ctx, member.Identity{
			ID:        head.ID,
			Email:     head.Email,
			CreatedAt: time.Now(),
			Metadata:  member.Metadata{"role": "club_head", "club": "AWS"},
		})
		assert.Equal(t, member.RoleClubHead, usr.Role)
		assert.Equal(t, "AWS", usr.Club)
		assert.Zero(t, usr.TotalCredits)
	})

	t.Run("query timeout", func(t *testing.T) {
		db := testutil.PrepareDB(t)
		identities := sqlxrepos.NewIdentityRepository(db, time.Second)
		profiles := sqlxrepos.NewProfileRepository(db, time.Second)
		head := testutil.CreateMember(t, identities, profiles, "Hank Head", "hank@test.cd", member.RoleClubHead, false)
		svc := newFacade(sqlxrepos.NewPortalRepository(db, time.Nanosecond), profiles)

		_, err := svc.CreateEvent(ctx, staticActor{member.FromProfile(head)}, eventInput)
		require.Error(t, err)
		assert.Equal(t, core.ErrBackendUnavailable, errors.Cause(err))
	})
}
