// Package testutil provides the databases and fixtures shared by tests.
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/storage/database"
)

// Password satisfies the password policy.
const Password = "Str0ng!Passw0rd#"

func init() {
	goose.SetLogger(goose.NopLogger())
}

// Config returns a test configuration backed by an in-memory sqlite database.
func Config() *core.Config {
	return &core.Config{
		AppName:         "ClubHub",
		Env:             "TEST",
		TestMode:        true,
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://localhost:3000",
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			LoginPath:                 "/login",
			HomePath:                  "/dashboard",
		},
		Database: core.DatabaseConfig{
			Engine:       database.SQLite,
			Name:         ":memory:",
			QueryTimeout: 5 * time.Second,
		},
	}
}

// PrepareDB opens a fresh, migrated in-memory sqlite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(Config())
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewValidator returns a validator with every application validator registered.
func NewValidator() *validator.Validate {
	validate, _ := NewValidatorTranslator()
	return validate
}

// NewValidatorTranslator returns a validator with every application validator registered,
// and the translator holding their messages.
func NewValidatorTranslator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)
	return validate, translator
}

// CreateMember stores an identity and its profile.
func CreateMember(
	t *testing.T,
	identities auth.Repository,
	profiles auth.ProfileProvisioner,
	name, email string,
	role member.Role,
	isAdmin bool,
) member.Profile {
	t.Helper()

	md := member.Metadata{"name": name, "role": string(role)}
	cred := auth.Credentials{
		Identity: member.Identity{
			ID:        uuid.NewString(),
			Email:     strings.ToLower(email),
			CreatedAt: time.Now().UTC().Truncate(time.Second),
			Metadata:  md,
		},
	}
	if err := cred.SetPassword(Password); err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}

	ctx := context.Background()
	cred, err := identities.CreateIdentity(ctx, cred)
	if err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	prof, err := profiles.CreateProfile(ctx, member.NewProfile(cred.Identity, isAdmin))
	if err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	return prof
}
