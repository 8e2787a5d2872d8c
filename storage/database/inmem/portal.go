package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
)

var (
	errChapterNotFound     = errors.WithMessage(core.ErrNotFound, "chapter not found")
	errClubNotFound        = errors.WithMessage(core.ErrNotFound, "club not found")
	errEventNotFound       = errors.WithMessage(core.ErrNotFound, "event not found")
	errParticipantNotFound = errors.WithMessage(core.ErrNotFound, "participant not found")
)

type portalRepository struct {
	db *DB
}

var _ portal.Repository = (*portalRepository)(nil) // interface compliance check

func NewPortalRepository(db *DB) *portalRepository {
	return &portalRepository{db: db}
}

func (repo *portalRepository) profileExists(id string) bool {
	_, ok := repo.db.profiles[id]
	return ok
}

func (repo *portalRepository) CreateChapter(_ context.Context, chapter portal.Chapter) (portal.Chapter, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if !repo.profileExists(chapter.CreatedBy) {
		return portal.Chapter{}, member.ErrProfileNotFound
	}
	for _, c := range repo.db.chapters {
		if c.Name == chapter.Name {
			return portal.Chapter{}, errors.WithMessage(core.ErrConflict, "chapter name exists")
		}
	}
	repo.db.chapters[chapter.ID] = &chapter
	return chapter, nil
}

func (repo *portalRepository) GetChapter(_ context.Context, id string) (portal.Chapter, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.chapters[id]; ok {
		return *c, nil
	}
	return portal.Chapter{}, errChapterNotFound
}

func (repo *portalRepository) ListChapters(_ context.Context) ([]portal.Chapter, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	chapters := make([]portal.Chapter, 0, len(repo.db.chapters))
	for _, c := range repo.db.chapters {
		chapters = append(chapters, *c)
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Name < chapters[j].Name })
	return chapters, nil
}

func (repo *portalRepository) CreateClub(_ context.Context, club portal.Club) (portal.Club, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.chapters[club.ChapterID]; !ok {
		return portal.Club{}, errChapterNotFound
	}
	if !repo.profileExists(club.CreatedBy) {
		return portal.Club{}, member.ErrProfileNotFound
	}
	for _, c := range repo.db.clubs {
		if c.ChapterID == club.ChapterID && c.Name == club.Name {
			return portal.Club{}, errors.WithMessage(core.ErrConflict, "club name exists")
		}
	}
	repo.db.clubs[club.ID] = &club
	return club, nil
}

func (repo *portalRepository) GetClub(_ context.Context, id string) (portal.Club, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.clubs[id]; ok {
		return *c, nil
	}
	return portal.Club{}, errClubNotFound
}

func (repo *portalRepository) ListClubs(_ context.Context, chapterID string) ([]portal.Club, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	clubs := make([]portal.Club, 0, len(repo.db.clubs))
	for _, c := range repo.db.clubs {
		if chapterID == "" || c.ChapterID == chapterID {
			clubs = append(clubs, *c)
		}
	}
	sort.Slice(clubs, func(i, j int) bool { return clubs[i].Name < clubs[j].Name })
	return clubs, nil
}

func (repo *portalRepository) ListClubMembers(_ context.Context, clubID string) ([]portal.ClubMember, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	members := make([]portal.ClubMember, 0)
	for key, m := range repo.db.clubMembers {
		if key.parentID == clubID {
			members = append(members, *m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

// addClubMember must be called with the lock held. An existing membership is kept as is.
func (repo *portalRepository) addClubMember(clubID, userID string, at time.Time) {
	key := memberKey{parentID: clubID, userID: userID}
	if _, ok := repo.db.clubMembers[key]; !ok {
		repo.db.clubMembers[key] = &portal.ClubMember{ClubID: clubID, UserID: userID, JoinedAt: at}
	}
}

func (repo *portalRepository) AssignClubHead(_ context.Context, userID, clubID string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prof, ok := repo.db.profiles[userID]
	if !ok {
		return member.ErrProfileNotFound
	}
	if _, ok = repo.db.clubs[clubID]; !ok {
		return errClubNotFound
	}
	prof.Role = member.RoleClubHead
	prof.ClubID = clubID
	repo.addClubMember(clubID, userID, at)
	return nil
}

func (repo *portalRepository) UpdateMembership(_ context.Context, userID, clubID, chapterID string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prof, ok := repo.db.profiles[userID]
	if !ok {
		return member.ErrProfileNotFound
	}
	if _, ok = repo.db.clubs[clubID]; !ok {
		return errClubNotFound
	}
	prof.ClubID = clubID
	prof.ChapterID = chapterID
	repo.addClubMember(clubID, userID, at)
	return nil
}

func (repo *portalRepository) CreateEvent(_ context.Context, evt portal.Event) (portal.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if !repo.profileExists(evt.CreatedBy) {
		return portal.Event{}, member.ErrProfileNotFound
	}
	repo.db.events[evt.ID] = &evt
	return evt, nil
}

func (repo *portalRepository) GetEvent(_ context.Context, id string) (portal.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e, ok := repo.db.events[id]; ok {
		return *e, nil
	}
	return portal.Event{}, errEventNotFound
}

func (repo *portalRepository) ListEvents(_ context.Context, since time.Time) ([]portal.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	events := make([]portal.Event, 0, len(repo.db.events))
	for _, e := range repo.db.events {
		if !e.Date.Before(since) {
			events = append(events, *e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events, nil
}

func (repo *portalRepository) AddParticipant(_ context.Context, eventID, userID string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.events[eventID]; !ok {
		return errEventNotFound
	}
	if !repo.profileExists(userID) {
		return member.ErrProfileNotFound
	}
	key := memberKey{parentID: eventID, userID: userID}
	if _, ok := repo.db.participants[key]; ok {
		return errors.WithMessage(core.ErrConflict, "participant exists")
	}
	repo.db.participants[key] = &participant{eventID: eventID, userID: userID, registeredAt: at.UnixNano()}
	return nil
}

func (repo *portalRepository) ListParticipants(_ context.Context, eventID string) ([]portal.Participant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	parts := make([]portal.Participant, 0)
	for key, p := range repo.db.participants {
		if key.parentID != eventID {
			continue
		}
		part := portal.Participant{
			EventID:      p.eventID,
			UserID:       p.userID,
			Attended:     p.attended,
			RegisteredAt: time.Unix(0, p.registeredAt).UTC(),
		}
		if prof, ok := repo.db.profiles[p.userID]; ok {
			part.Name, part.Email = prof.Name, prof.Email
		}
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].RegisteredAt.Before(parts[j].RegisteredAt) })
	return parts, nil
}

func (repo *portalRepository) MarkAttendance(_ context.Context, eventID, userID string, tx portal.CreditTransaction) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.participants[memberKey{parentID: eventID, userID: userID}]
	if !ok {
		return false, errParticipantNotFound
	}
	if p.attended {
		return false, nil
	}
	if err := repo.appendCredit(tx); err != nil {
		return false, err
	}
	p.attended = true
	return true, nil
}

func (repo *portalRepository) AppendCredit(_ context.Context, tx portal.CreditTransaction) (portal.CreditTransaction, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.appendCredit(tx); err != nil {
		return portal.CreditTransaction{}, err
	}
	return tx, nil
}

// appendCredit must be called with the lock held.
func (repo *portalRepository) appendCredit(tx portal.CreditTransaction) error {
	prof, ok := repo.db.profiles[tx.RecipientID]
	if !ok {
		return member.ErrProfileNotFound
	}
	if tx.AwardedBy != "" && !repo.profileExists(tx.AwardedBy) {
		return member.ErrProfileNotFound
	}
	if tx.EventID != "" {
		if _, ok = repo.db.events[tx.EventID]; !ok {
			return errEventNotFound
		}
	}
	if tx.Amount <= 0 {
		return errors.New("credit amount must be positive")
	}
	repo.db.credits = append(repo.db.credits, tx)
	prof.TotalCredits += tx.Amount
	return nil
}

func (repo *portalRepository) ListCredits(_ context.Context, recipientID string) ([]portal.CreditTransaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	txs := make([]portal.CreditTransaction, 0)
	for i := len(repo.db.credits) - 1; i >= 0; i-- {
		if tx := repo.db.credits[i]; tx.RecipientID == recipientID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}
