package inmemdb

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
)

var (
	errIdentityNotFound = errors.WithMessage(core.ErrNotFound, "identity not found")
	errSessionNotFound  = errors.WithMessage(core.ErrNotFound, "session not found")
)

type identityRepository struct {
	db *DB
}

var _ auth.Repository = (*identityRepository)(nil) // interface compliance check

func NewIdentityRepository(db *DB) *identityRepository {
	return &identityRepository{db: db}
}

func copyCredentials(cred *auth.Credentials) auth.Credentials {
	c := *cred
	c.Identity.Metadata = make(member.Metadata, len(cred.Identity.Metadata))
	for k, v := range cred.Identity.Metadata {
		c.Identity.Metadata[k] = v
	}
	c.PasswordHash = append([]byte(nil), cred.PasswordHash...)
	return c
}

func (repo *identityRepository) CreateIdentity(_ context.Context, cred auth.Credentials) (auth.Credentials, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.identities[cred.Identity.ID]; ok {
		return auth.Credentials{}, errors.WithMessage(core.ErrConflict, "identity exists")
	}
	for _, c := range repo.db.identities {
		if c.Identity.Email == cred.Identity.Email {
			return auth.Credentials{}, errors.WithMessage(core.ErrConflict, "email exists")
		}
	}
	c := copyCredentials(&cred)
	repo.db.identities[c.Identity.ID] = &c
	return copyCredentials(&c), nil
}

func (repo *identityRepository) GetIdentity(_ context.Context, id string) (auth.Credentials, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cred, ok := repo.db.identities[id]; ok {
		return copyCredentials(cred), nil
	}
	return auth.Credentials{}, errIdentityNotFound
}

func (repo *identityRepository) GetIdentityByEmail(_ context.Context, email string) (auth.Credentials, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, cred := range repo.db.identities {
		if cred.Identity.Email == email {
			return copyCredentials(cred), nil
		}
	}
	return auth.Credentials{}, errIdentityNotFound
}

func (repo *identityRepository) UpdatePassword(_ context.Context, id string, hash []byte) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cred, ok := repo.db.identities[id]
	if !ok {
		return errIdentityNotFound
	}
	cred.PasswordHash = append([]byte(nil), hash...)
	return nil
}

func (repo *identityRepository) SetLastSignIn(_ context.Context, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cred, ok := repo.db.identities[id]
	if !ok {
		return errIdentityNotFound
	}
	cred.LastSignIn = at.UTC()
	return nil
}

func (repo *identityRepository) CreateSession(_ context.Context, sess auth.Session) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.identities[sess.IdentityID]; !ok {
		return errIdentityNotFound
	}
	if _, ok := repo.db.sessions[sess.ID]; ok {
		return errors.WithMessage(core.ErrConflict, "session exists")
	}
	repo.db.sessions[sess.ID] = &sess
	return nil
}

func (repo *identityRepository) GetSession(_ context.Context, id string) (auth.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return *sess, nil
	}
	return auth.Session{}, errSessionNotFound
}

func (repo *identityRepository) DeleteSession(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.sessions, id)
	return nil
}

func (repo *identityRepository) DeleteIdentitySessions(_ context.Context, identityID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, sess := range repo.db.sessions {
		if sess.IdentityID == identityID {
			delete(repo.db.sessions, id)
		}
	}
	return nil
}
