package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
)

var (
	errChapterNotFound     = errors.WithMessage(core.ErrNotFound, "chapter not found")
	errClubNotFound        = errors.WithMessage(core.ErrNotFound, "club not found")
	errEventNotFound       = errors.WithMessage(core.ErrNotFound, "event not found")
	errParticipantNotFound = errors.WithMessage(core.ErrNotFound, "participant not found")
	errReferenceNotFound   = errors.WithMessage(core.ErrNotFound, "referenced row not found")
)

type (
	chapterRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		CreatedBy string    `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	clubRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		ChapterID string    `db:"chapter_id"`
		CreatedBy string    `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	clubMemberRow struct {
		ClubID   string    `db:"club_id"`
		UserID   string    `db:"user_id"`
		JoinedAt time.Time `db:"joined_at"`
	}

	eventRow struct {
		ID          string    `db:"id"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		Location    string    `db:"location"`
		StartsAt    time.Time `db:"starts_at"`
		Credits     int       `db:"credits"`
		CreatedBy   string    `db:"created_by"`
		CreatedAt   time.Time `db:"created_at"`
	}

	participantRow struct {
		EventID      string    `db:"event_id"`
		UserID       string    `db:"user_id"`
		Name         string    `db:"name"`
		Email        string    `db:"email"`
		Attended     bool      `db:"attended"`
		RegisteredAt time.Time `db:"registered_at"`
	}

	creditRow struct {
		ID          string      `db:"id"`
		RecipientID string      `db:"recipient_id"`
		AwardedBy   null.String `db:"awarded_by"`
		Amount      int         `db:"amount"`
		Reason      string      `db:"reason"`
		EventID     null.String `db:"event_id"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	portalRepository struct {
		repository
	}
)

var _ portal.Repository = (*portalRepository)(nil) // interface compliance check

func NewPortalRepository(db core.DB, queryTimeout time.Duration) *portalRepository {
	return &portalRepository{repository: newRepository(db, queryTimeout)}
}

// Chapters & clubs

func (repo portalRepository) CreateChapter(ctx context.Context, chapter portal.Chapter) (portal.Chapter, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	chapter.CreatedAt = chapter.CreatedAt.UTC()
	q := `INSERT INTO chapters (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`
	if _, err := repo.exec(ctx, repo.db, q, chapter.ID, chapter.Name, chapter.CreatedBy, chapter.CreatedAt); err != nil {
		return portal.Chapter{}, trapErr(err, member.ErrProfileNotFound, "inserting chapter")
	}
	return chapter, nil
}

func (repo portalRepository) GetChapter(ctx context.Context, id string) (portal.Chapter, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row chapterRow
	q := `SELECT id, name, created_by, created_at FROM chapters WHERE id = ?`
	if err := repo.get(ctx, repo.db, &row, q, id); err != nil {
		return portal.Chapter{}, trapErr(err, errChapterNotFound, "finding chapter")
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return portal.Chapter(row), nil
}

func (repo portalRepository) ListChapters(ctx context.Context) ([]portal.Chapter, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []chapterRow
	if err := repo.selekt(ctx, repo.db, &rows, `SELECT id, name, created_by, created_at FROM chapters ORDER BY name`); err != nil {
		return nil, trapErr(err, errChapterNotFound, "listing chapters")
	}
	chapters := make([]portal.Chapter, 0, len(rows))
	for _, row := range rows {
		row.CreatedAt = row.CreatedAt.UTC()
		chapters = append(chapters, portal.Chapter(row))
	}
	return chapters, nil
}

func (repo portalRepository) CreateClub(ctx context.Context, club portal.Club) (portal.Club, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	club.CreatedAt = club.CreatedAt.UTC()
	q := `INSERT INTO clubs (id, name, chapter_id, created_by, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := repo.exec(ctx, repo.db, q, club.ID, club.Name, club.ChapterID, club.CreatedBy, club.CreatedAt); err != nil {
		return portal.Club{}, trapErr(err, errChapterNotFound, "inserting club")
	}
	return club, nil
}

func (repo portalRepository) GetClub(ctx context.Context, id string) (portal.Club, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row clubRow
	q := `SELECT id, name, chapter_id, created_by, created_at FROM clubs WHERE id = ?`
	if err := repo.get(ctx, repo.db, &row, q, id); err != nil {
		return portal.Club{}, trapErr(err, errClubNotFound, "finding club")
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return portal.Club(row), nil
}

func (repo portalRepository) ListClubs(ctx context.Context, chapterID string) ([]portal.Club, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `SELECT id, name, chapter_id, created_by, created_at FROM clubs`
	var args []interface{}
	if chapterID != "" {
		q += ` WHERE chapter_id = ?`
		args = append(args, chapterID)
	}
	q += ` ORDER BY name, id`

	var rows []clubRow
	if err := repo.selekt(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, trapErr(err, errClubNotFound, "listing clubs")
	}
	clubs := make([]portal.Club, 0, len(rows))
	for _, row := range rows {
		row.CreatedAt = row.CreatedAt.UTC()
		clubs = append(clubs, portal.Club(row))
	}
	return clubs, nil
}

func (repo portalRepository) ListClubMembers(ctx context.Context, clubID string) ([]portal.ClubMember, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []clubMemberRow
	q := `SELECT club_id, user_id, joined_at FROM club_members WHERE club_id = ? ORDER BY joined_at, user_id`
	if err := repo.selekt(ctx, repo.db, &rows, q, clubID); err != nil {
		return nil, trapErr(err, errClubNotFound, "listing club members")
	}
	members := make([]portal.ClubMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, portal.ClubMember{ClubID: row.ClubID, UserID: row.UserID, JoinedAt: row.JoinedAt.UTC()})
	}
	return members, nil
}

// addClubMember inserts the membership, doing nothing when it exists.
// The insert itself absorbs the duplicate so that concurrent callers all succeed.
func (repo portalRepository) addClubMember(ctx context.Context, tx *sqlx.Tx, clubID, userID string, at time.Time) error {
	q := `INSERT INTO club_members (club_id, user_id, joined_at) VALUES (?, ?, ?)`
	if tx.DriverName() == "mysql" {
		q += ` ON DUPLICATE KEY UPDATE club_id = club_id`
	} else {
		q += ` ON CONFLICT (club_id, user_id) DO NOTHING`
	}
	_, err := repo.exec(ctx, tx, q, clubID, userID, at.UTC())
	return err
}

func (repo portalRepository) setMembership(ctx context.Context, msg, userID, clubID string, at time.Time, q string, args ...interface{}) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err := repo.exec(ctx, tx, q, args...)
		if err != nil {
			return err
		}
		if n == 0 {
			return member.ErrProfileNotFound
		}
		return repo.addClubMember(ctx, tx, clubID, userID, at)
	})
	if errors.Cause(err) == core.ErrNotFound {
		return err
	}
	return trapErr(err, errClubNotFound, msg)
}

func (repo portalRepository) AssignClubHead(ctx context.Context, userID, clubID string, at time.Time) error {
	q := `UPDATE profiles SET role = ?, club_id = ? WHERE id = ?`
	return repo.setMembership(ctx, "assigning club head", userID, clubID, at, q, string(member.RoleClubHead), clubID, userID)
}

func (repo portalRepository) UpdateMembership(ctx context.Context, userID, clubID, chapterID string, at time.Time) error {
	q := `UPDATE profiles SET club_id = ?, chapter_id = ? WHERE id = ?`
	return repo.setMembership(ctx, "updating membership", userID, clubID, at, q, clubID, chapterID, userID)
}

// Events

func (repo portalRepository) fromEventRow(row eventRow) portal.Event {
	return portal.Event{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Location:    row.Location,
		Date:        row.StartsAt.UTC(),
		Credits:     row.Credits,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

const eventColumns = `id, name, description, location, starts_at, credits, created_by, created_at`

func (repo portalRepository) CreateEvent(ctx context.Context, evt portal.Event) (portal.Event, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	evt.Date, evt.CreatedAt = evt.Date.UTC(), evt.CreatedAt.UTC()
	q := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec(ctx, repo.db, q, evt.ID, evt.Name, evt.Description, evt.Location, evt.Date, evt.Credits, evt.CreatedBy, evt.CreatedAt)
	if err != nil {
		return portal.Event{}, trapErr(err, member.ErrProfileNotFound, "inserting event")
	}
	return evt, nil
}

func (repo portalRepository) GetEvent(ctx context.Context, id string) (portal.Event, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row eventRow
	if err := repo.get(ctx, repo.db, &row, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id); err != nil {
		return portal.Event{}, trapErr(err, errEventNotFound, "finding event")
	}
	return repo.fromEventRow(row), nil
}

func (repo portalRepository) ListEvents(ctx context.Context, since time.Time) ([]portal.Event, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `SELECT ` + eventColumns + ` FROM events`
	var args []interface{}
	if !since.IsZero() {
		q += ` WHERE starts_at >= ?`
		args = append(args, since.UTC())
	}
	q += ` ORDER BY starts_at, id`

	var rows []eventRow
	if err := repo.selekt(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, trapErr(err, errEventNotFound, "listing events")
	}
	events := make([]portal.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, repo.fromEventRow(row))
	}
	return events, nil
}

func (repo portalRepository) AddParticipant(ctx context.Context, eventID, userID string, at time.Time) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `INSERT INTO event_participants (event_id, user_id, attended, registered_at) VALUES (?, ?, ?, ?)`
	if _, err := repo.exec(ctx, repo.db, q, eventID, userID, false, at.UTC()); err != nil {
		return trapErr(err, errReferenceNotFound, "inserting participant")
	}
	return nil
}

func (repo portalRepository) ListParticipants(ctx context.Context, eventID string) ([]portal.Participant, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `SELECT ep.event_id, ep.user_id, p.name, p.email, ep.attended, ep.registered_at
		FROM event_participants ep JOIN profiles p ON p.id = ep.user_id
		WHERE ep.event_id = ? ORDER BY ep.registered_at, ep.user_id`
	var rows []participantRow
	if err := repo.selekt(ctx, repo.db, &rows, q, eventID); err != nil {
		return nil, trapErr(err, errEventNotFound, "listing participants")
	}
	parts := make([]portal.Participant, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, portal.Participant{
			EventID:      row.EventID,
			UserID:       row.UserID,
			Name:         row.Name,
			Email:        row.Email,
			Attended:     row.Attended,
			RegisteredAt: row.RegisteredAt.UTC(),
		})
	}
	return parts, nil
}

func (repo portalRepository) MarkAttendance(ctx context.Context, eventID, userID string, ct portal.CreditTransaction) (bool, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var awarded bool
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		q := `UPDATE event_participants SET attended = ? WHERE event_id = ? AND user_id = ? AND attended = ?`
		n, err := repo.exec(ctx, tx, q, true, eventID, userID, false)
		if err != nil {
			return err
		}
		if n == 0 {
			var cnt int
			q = `SELECT COUNT(*) FROM event_participants WHERE event_id = ? AND user_id = ?`
			if err = repo.get(ctx, tx, &cnt, q, eventID, userID); err != nil {
				return err
			}
			if cnt == 0 {
				return errParticipantNotFound
			}
			return nil // already attended
		}
		awarded = true
		return repo.appendCredit(ctx, tx, ct)
	})
	if errors.Cause(err) == core.ErrNotFound {
		return false, err
	}
	if err != nil {
		return false, trapErr(err, errReferenceNotFound, "marking attendance")
	}
	return awarded, nil
}

// Credits

func (repo portalRepository) appendCredit(ctx context.Context, tx *sqlx.Tx, ct portal.CreditTransaction) error {
	q := `INSERT INTO credit_transactions (id, recipient_id, awarded_by, amount, reason, event_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec(ctx, tx, q,
		ct.ID, ct.RecipientID, nullString(ct.AwardedBy), ct.Amount, ct.Reason, nullString(ct.EventID), ct.CreatedAt.UTC())
	if err != nil {
		return err
	}
	n, err := repo.exec(ctx, tx, `UPDATE profiles SET total_credits = total_credits + ? WHERE id = ?`, ct.Amount, ct.RecipientID)
	if err != nil {
		return err
	}
	if n == 0 {
		return member.ErrProfileNotFound
	}
	return nil
}

func (repo portalRepository) AppendCredit(ctx context.Context, ct portal.CreditTransaction) (portal.CreditTransaction, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	ct.CreatedAt = ct.CreatedAt.UTC()
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		return repo.appendCredit(ctx, tx, ct)
	})
	if errors.Cause(err) == core.ErrNotFound {
		return portal.CreditTransaction{}, err
	}
	if err != nil {
		return portal.CreditTransaction{}, trapErr(err, errReferenceNotFound, "appending credit transaction")
	}
	return ct, nil
}

func (repo portalRepository) ListCredits(ctx context.Context, recipientID string) ([]portal.CreditTransaction, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `SELECT id, recipient_id, awarded_by, amount, reason, event_id, created_at
		FROM credit_transactions WHERE recipient_id = ? ORDER BY created_at DESC, id`
	var rows []creditRow
	if err := repo.selekt(ctx, repo.db, &rows, q, recipientID); err != nil {
		return nil, trapErr(err, member.ErrProfileNotFound, "listing credit transactions")
	}
	txs := make([]portal.CreditTransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, portal.CreditTransaction{
			ID:          row.ID,
			RecipientID: row.RecipientID,
			AwardedBy:   row.AwardedBy.String,
			Amount:      row.Amount,
			Reason:      row.Reason,
			EventID:     row.EventID.String,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return txs, nil
}
