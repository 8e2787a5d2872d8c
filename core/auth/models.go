package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/clubhub/core/member"
)

// Credentials is an Identity plus what is needed to sign it in.
type Credentials struct {
	Identity     member.Identity
	PasswordHash []byte
	LastSignIn   time.Time // UTC
}

func (c *Credentials) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	return nil
}

func (c *Credentials) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(pwd))
}

// Session is a server-side sign-in. Deleting it revokes every token issued for it.
type Session struct {
	ID         string
	IdentityID string
	IssuedAt   time.Time // UTC
	ExpiresAt  time.Time // UTC
}

type Repository interface {
	// CreateIdentity fails with a core.ErrConflict cause when the email is taken.
	CreateIdentity(ctx context.Context, cred Credentials) (Credentials, error)
	GetIdentity(ctx context.Context, id string) (Credentials, error)
	GetIdentityByEmail(ctx context.Context, email string) (Credentials, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	SetLastSignIn(ctx context.Context, id string, at time.Time) error

	CreateSession(ctx context.Context, sess Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteIdentitySessions(ctx context.Context, identityID string) error
}

// ProfileProvisioner creates the profile row of a freshly signed-up identity.
type ProfileProvisioner interface {
	CreateProfile(ctx context.Context, prof member.Profile) (member.Profile, error)
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
