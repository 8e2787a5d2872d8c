package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
)

var (
	errIdentityNotFound = errors.WithMessage(core.ErrNotFound, "identity not found")
	errSessionNotFound  = errors.WithMessage(core.ErrNotFound, "session not found")
)

type (
	identityRow struct {
		ID           string    `db:"id"`
		Email        string    `db:"email"`
		PasswordHash string    `db:"password_hash"`
		Metadata     string    `db:"metadata"`
		CreatedAt    time.Time `db:"created_at"`
		LastSignIn   null.Time `db:"last_sign_in"`
	}

	sessionRow struct {
		ID         string    `db:"id"`
		IdentityID string    `db:"identity_id"`
		IssuedAt   time.Time `db:"issued_at"`
		ExpiresAt  time.Time `db:"expires_at"`
	}

	identityRepository struct {
		repository
	}
)

var _ auth.Repository = (*identityRepository)(nil) // interface compliance check

func NewIdentityRepository(db core.DB, queryTimeout time.Duration) *identityRepository {
	return &identityRepository{repository: newRepository(db, queryTimeout)}
}

func (repo identityRepository) toRow(cred auth.Credentials) (identityRow, error) {
	md := cred.Identity.Metadata
	if md == nil {
		md = member.Metadata{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return identityRow{}, errors.Wrap(err, "encoding metadata")
	}
	return identityRow{
		ID:           cred.Identity.ID,
		Email:        cred.Identity.Email,
		PasswordHash: string(cred.PasswordHash),
		Metadata:     string(mdJSON),
		CreatedAt:    cred.Identity.CreatedAt.UTC(),
		LastSignIn:   null.NewTime(cred.LastSignIn.UTC(), !cred.LastSignIn.IsZero()),
	}, nil
}

func (repo identityRepository) fromRow(row identityRow) (auth.Credentials, error) {
	md := make(member.Metadata)
	if err := json.Unmarshal([]byte(row.Metadata), &md); err != nil {
		return auth.Credentials{}, errors.Wrap(err, "decoding metadata")
	}
	return auth.Credentials{
		Identity: member.Identity{
			ID:        row.ID,
			Email:     row.Email,
			CreatedAt: row.CreatedAt.UTC(),
			Metadata:  md,
		},
		PasswordHash: []byte(row.PasswordHash),
		LastSignIn:   row.LastSignIn.Time.UTC(),
	}, nil
}

func (repo identityRepository) CreateIdentity(ctx context.Context, cred auth.Credentials) (auth.Credentials, error) {
	row, err := repo.toRow(cred)
	if err != nil {
		return auth.Credentials{}, err
	}

	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `INSERT INTO identities (id, email, password_hash, metadata, created_at, last_sign_in) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err = repo.exec(ctx, repo.db, q, row.ID, row.Email, row.PasswordHash, row.Metadata, row.CreatedAt, row.LastSignIn); err != nil {
		return auth.Credentials{}, trapErr(err, errIdentityNotFound, "inserting identity")
	}
	return repo.fromRow(row)
}

func (repo identityRepository) getBy(ctx context.Context, column, value string) (auth.Credentials, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row identityRow
	q := `SELECT id, email, password_hash, metadata, created_at, last_sign_in FROM identities WHERE ` + column + ` = ?`
	if err := repo.get(ctx, repo.db, &row, q, value); err != nil {
		return auth.Credentials{}, trapErr(err, errIdentityNotFound, "finding identity")
	}
	return repo.fromRow(row)
}

func (repo identityRepository) GetIdentity(ctx context.Context, id string) (auth.Credentials, error) {
	return repo.getBy(ctx, "id", id)
}

func (repo identityRepository) GetIdentityByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	return repo.getBy(ctx, "email", email)
}

func (repo identityRepository) update(ctx context.Context, msg, q string, args ...interface{}) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	n, err := repo.exec(ctx, repo.db, q, args...)
	if err != nil {
		return trapErr(err, errIdentityNotFound, msg)
	}
	if n == 0 {
		return errIdentityNotFound
	}
	return nil
}

func (repo identityRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	return repo.update(ctx, "updating password", `UPDATE identities SET password_hash = ? WHERE id = ?`, string(hash), id)
}

func (repo identityRepository) SetLastSignIn(ctx context.Context, id string, at time.Time) error {
	return repo.update(ctx, "setting last sign-in", `UPDATE identities SET last_sign_in = ? WHERE id = ?`, at.UTC(), id)
}

func (repo identityRepository) CreateSession(ctx context.Context, sess auth.Session) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	q := `INSERT INTO auth_sessions (id, identity_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`
	if _, err := repo.exec(ctx, repo.db, q, sess.ID, sess.IdentityID, sess.IssuedAt.UTC(), sess.ExpiresAt.UTC()); err != nil {
		return trapErr(err, errIdentityNotFound, "inserting session")
	}
	return nil
}

func (repo identityRepository) GetSession(ctx context.Context, id string) (auth.Session, error) {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	var row sessionRow
	q := `SELECT id, identity_id, issued_at, expires_at FROM auth_sessions WHERE id = ?`
	if err := repo.get(ctx, repo.db, &row, q, id); err != nil {
		return auth.Session{}, trapErr(err, errSessionNotFound, "finding session")
	}
	return auth.Session{
		ID:         row.ID,
		IdentityID: row.IdentityID,
		IssuedAt:   row.IssuedAt.UTC(),
		ExpiresAt:  row.ExpiresAt.UTC(),
	}, nil
}

func (repo identityRepository) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	if _, err := repo.exec(ctx, repo.db, `DELETE FROM auth_sessions WHERE id = ?`, id); err != nil {
		return trapErr(err, errSessionNotFound, "deleting session")
	}
	return nil
}

func (repo identityRepository) DeleteIdentitySessions(ctx context.Context, identityID string) error {
	ctx, cancel := repo.ctx(ctx)
	defer cancel()

	if _, err := repo.exec(ctx, repo.db, `DELETE FROM auth_sessions WHERE identity_id = ?`, identityID); err != nil {
		return trapErr(err, errSessionNotFound, "deleting sessions")
	}
	return nil
}
