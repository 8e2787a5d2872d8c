package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
)

const profileColumns = `id, name, email, role, is_admin, club_id, chapter_id, total_credits, phone, city, state, college, joined_at`

type (
	profileRow struct {
		ID           string      `db:"id"`
		Name         string      `db:"name"`
		Email        string      `db:"email"`
		Role         string      `db:"role"`
		IsAdmin      bool        `db:"is_admin"`
		ClubID       null.String `db:"club_id"`
		ChapterID    null.String `db:"chapter_id"`
		TotalCredits int         `db:"total_credits"`
		Phone        null.String `db:"phone"`
		City         null.String `db:"city"`
		State        null.String `db:"state"`
		College      null.String `db:"college"`
		JoinedAt     time.Time   `db:"joined_at"`
	}

	profileRepository struct {
		repository
	}
)

var _ member.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db core.DB, queryTimeout time.Duration) *profileRepository {
	return &profileRepository{repository: newRepository(db, queryTimeout)}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func (repo profileRepository) toRow(prof member.Profile) profileRow {
	return profileRow{
		ID:           prof.ID,
		Name:         prof.Name,
		Email:        prof.Email,
		Role:         string(prof.Role),
		IsAdmin:      prof.IsAdmin,
		ClubID:       nullString(prof.ClubID),
		ChapterID:    nullString(prof.ChapterID),
		TotalCredits: prof.TotalCredits,
		Phone:        nullString(prof.Phone),
		City:         nullString(prof.City),
		State:        nullString(prof.State),
		College:      nullString(prof.College),
		JoinedAt:     prof.JoinedAt.UTC(),
	}
}

func (repo profileRepository) fromRow(row profileRow) member.Profile {
	return member.Profile{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Role:         member.Role(row.Role),
		IsAdmin:      row.IsAdmin,
		ClubID:       row.ClubID.String,
		ChapterID:    row.ChapterID.String,
		TotalCredits: row.TotalCredits,
		Phone:        row.Phone.String,
		City:         row.City.String,
		State:        row.State.String,
		College:      row.College.String,
		JoinedAt:     row.JoinedAt.UTC(),
	}
}

func (repo profileRepository) CreateProfile(ctx context.Context, prof member.Profile) (member.Profile, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	row := repo.toRow(prof)
	q := `INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec(ctx, repo.db, q,
		row.ID, row.Name, row.Email, row.Role, row.IsAdmin, row.ClubID, row.ChapterID,
		row.TotalCredits, row.Phone, row.City, row.State, row.College, row.JoinedAt)
	if err != nil {
		return member.Profile{}, trapErr(err, errIdentityNotFound, "inserting profile")
	}
	return repo.fromRow(row), nil
}

func (repo profileRepository) GetProfile(ctx context.Context, id string) (member.Profile, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row profileRow
	if err := repo.get(ctx, repo.db, &row, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id); err != nil {
		return member.Profile{}, trapErr(err, member.ErrProfileNotFound, "finding profile")
	}
	return repo.fromRow(row), nil
}

func (repo profileRepository) UpdateProfileDetails(ctx context.Context, id string, details member.ProfileDetails) (member.Profile, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `UPDATE profiles SET name = ?, phone = ?, city = ?, state = ?, college = ? WHERE id = ?`
	n, err := repo.exec(ctx, repo.db, q,
		details.Name, nullString(details.Phone), nullString(details.City), nullString(details.State), nullString(details.College), id)
	if err != nil {
		return member.Profile{}, trapErr(err, member.ErrProfileNotFound, "updating profile")
	}
	if n == 0 {
		return member.Profile{}, member.ErrProfileNotFound
	}

	var row profileRow
	if err = repo.get(ctx, repo.db, &row, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id); err != nil {
		return member.Profile{}, trapErr(err, member.ErrProfileNotFound, "finding profile")
	}
	return repo.fromRow(row), nil
}

func (repo profileRepository) QueryProfiles(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Profile, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// profiles with Name or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			where = append(where, "(LOWER(name) LIKE ? OR LOWER(email) LIKE ?)")
			args = append(args, val, val)
		}
		if len(filter.Roles) > 0 {
			where = append(where, "role IN (?"+strings.Repeat(", ?", len(filter.Roles)-1)+")")
			for _, r := range filter.Roles {
				args = append(args, r)
			}
		}
		if filter.ClubID != "" {
			where = append(where, "club_id = ?")
			args = append(args, filter.ClubID)
		}
		if filter.ChapterID != "" {
			where = append(where, "chapter_id = ?")
			args = append(args, filter.ChapterID)
		}
	}

	q := `SELECT ` + profileColumns + ` FROM profiles`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderList := core.RestrictOrdering(ordering, member.OrderingFields, member.DefaultOrdering)
	q += " ORDER BY " + core.OrderByClause(append(orderList, core.DBOrdering{Field: "id", Ascending: true}))

	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var rows []profileRow
	if err := repo.selekt(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, trapErr(err, member.ErrProfileNotFound, "querying profiles")
	}
	profs := make([]member.Profile, 0, len(rows))
	for _, row := range rows {
		profs = append(profs, repo.fromRow(row))
	}
	return profs, nil
}
