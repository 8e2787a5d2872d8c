package portal_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
)

// countingRepo counts every call reaching the stores behind the facade.
type countingRepo struct {
	repo     portal.Repository
	profiles member.ProfileReader
	calls    int64
}

var (
	_ portal.Repository    = (*countingRepo)(nil)
	_ member.ProfileReader = (*countingRepo)(nil)
)

func (c *countingRepo) hit()         { atomic.AddInt64(&c.calls, 1) }
func (c *countingRepo) reset()       { atomic.StoreInt64(&c.calls, 0) }
func (c *countingRepo) count() int64 { return atomic.LoadInt64(&c.calls) }

func (c *countingRepo) GetProfile(ctx context.Context, id string) (member.Profile, error) {
	c.hit()
	return c.profiles.GetProfile(ctx, id)
}

func (c *countingRepo) CreateChapter(ctx context.Context, chapter portal.Chapter) (portal.Chapter, error) {
	c.hit()
	return c.repo.CreateChapter(ctx, chapter)
}

func (c *countingRepo) GetChapter(ctx context.Context, id string) (portal.Chapter, error) {
	c.hit()
	return c.repo.GetChapter(ctx, id)
}

func (c *countingRepo) ListChapters(ctx context.Context) ([]portal.Chapter, error) {
	c.hit()
	return c.repo.ListChapters(ctx)
}

func (c *countingRepo) CreateClub(ctx context.Context, club portal.Club) (portal.Club, error) {
	c.hit()
	return c.repo.CreateClub(ctx, club)
}

func (c *countingRepo) GetClub(ctx context.Context, id string) (portal.Club, error) {
	c.hit()
	return c.repo.GetClub(ctx, id)
}

func (c *countingRepo) ListClubs(ctx context.Context, chapterID string) ([]portal.Club, error) {
	c.hit()
	return c.repo.ListClubs(ctx, chapterID)
}

func (c *countingRepo) ListClubMembers(ctx context.Context, clubID string) ([]portal.ClubMember, error) {
	c.hit()
	return c.repo.ListClubMembers(ctx, clubID)
}

func (c *countingRepo) AssignClubHead(ctx context.Context, userID, clubID string, at time.Time) error {
	c.hit()
	return c.repo.AssignClubHead(ctx, userID, clubID, at)
}

func (c *countingRepo) UpdateMembership(ctx context.Context, userID, clubID, chapterID string, at time.Time) error {
	c.hit()
	return c.repo.UpdateMembership(ctx, userID, clubID, chapterID, at)
}

func (c *countingRepo) CreateEvent(ctx context.Context, evt portal.Event) (portal.Event, error) {
	c.hit()
	return c.repo.CreateEvent(ctx, evt)
}

func (c *countingRepo) GetEvent(ctx context.Context, id string) (portal.Event, error) {
	c.hit()
	return c.repo.GetEvent(ctx, id)
}

func (c *countingRepo) ListEvents(ctx context.Context, since time.Time) ([]portal.Event, error) {
	c.hit()
	return c.repo.ListEvents(ctx, since)
}

func (c *countingRepo) AddParticipant(ctx context.Context, eventID, userID string, at time.Time) error {
	c.hit()
	return c.repo.AddParticipant(ctx, eventID, userID, at)
}

func (c *countingRepo) ListParticipants(ctx context.Context, eventID string) ([]portal.Participant, error) {
	c.hit()
	return c.repo.ListParticipants(ctx, eventID)
}

func (c *countingRepo) MarkAttendance(ctx context.Context, eventID, userID string, tx portal.CreditTransaction) (bool, error) {
	c.hit()
	return c.repo.MarkAttendance(ctx, eventID, userID, tx)
}

func (c *countingRepo) AppendCredit(ctx context.Context, tx portal.CreditTransaction) (portal.CreditTransaction, error) {
	c.hit()
	return c.repo.AppendCredit(ctx, tx)
}

func (c *countingRepo) ListCredits(ctx context.Context, recipientID string) ([]portal.CreditTransaction, error) {
	c.hit()
	return c.repo.ListCredits(ctx, recipientID)
}
