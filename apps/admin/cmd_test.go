package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
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

type cliEnv struct {
	cli        *commandLine
	out        *bytes.Buffer
	hub        *auth.Hub
	identities auth.Repository
	profiles   member.Repository
}

func setup(t *testing.T) *cliEnv {
	t.Helper()

	conf := testutil.Config()
	logger := logsvc.NewLoggerMock()
	validate := testutil.NewValidator()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	identities := sqlxrepos.NewIdentityRepository(db, conf.Database.QueryTimeout)
	profiles := sqlxrepos.NewProfileRepository(db, conf.Database.QueryTimeout)
	portalRepo := sqlxrepos.NewPortalRepository(db, conf.Database.QueryTimeout)

	// set up services
	hub := auth.NewHub()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	authSvc := auth.NewService(identities, profiles, hub, mailSvc, validate, logger, conf)

	// start CLI
	out := new(bytes.Buffer)
	return &cliEnv{
		cli: &commandLine{
			db:        db,
			authSvc:   authSvc,
			portalSvc: portal.NewService(portalRepo, profiles, authSvc, nil, mailSvc, validate, logger),
			profiles:  profiles,
			logger:    logger,
			out:       out,
		},
		out:        out,
		hub:        hub,
		identities: identities,
		profiles:   profiles,
	}
}

// withPassword makes the password prompt answer pwd.
func withPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (env *cliEnv) run(t *testing.T, tests []cliTest) {
	t.Helper()

	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			withPassword(t, tt.pwd)
			err := env.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.True(t, err == tt.wantErr || errors.Cause(err) == tt.wantErr, "got %v, want %v", err, tt.wantErr)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

// lastJSON decodes the last JSON document printed by the CLI.
func (env *cliEnv) lastJSON(t *testing.T, v interface{}) {
	t.Helper()

	out := env.out.Bytes()
	i := bytes.LastIndex(out, []byte("\n{"))
	require.NotEqual(t, -1, i, env.out.String())
	require.NoError(t, json.Unmarshal(out[i+1:], v), env.out.String())
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	env.run(t, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "club_events", "sql"}},
	})
}

func Test_commandLine_migrateStatus(t *testing.T) {
	env := setup(t)

	// the real runner against the already migrated database
	require.NoError(t, env.cli.run([]string{"admin", "migrate", "status"}))
	require.NoError(t, env.cli.run([]string{"admin", "migrate", "up"}))
}

func Test_commandLine_addUser(t *testing.T) {
	env := setup(t)
	testutil.CreateMember(t, env.identities, env.profiles, "Taken", "taken@test.cd", member.RoleMember, false)

	env.run(t, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ada", "-email", "ada@test.cd"}, wantErr: errHelp},
	})

	// a weak password fails validation
	withPassword(t, "password")
	err := env.cli.run([]string{"admin", "adduser", "-name", "Ada", "-email", "ada@test.cd"})
	assert.True(t, core.IsValidation(err), "got %v", err)

	env.run(t, []cliTest{
		{
			name: "email taken", args: []string{"adduser", "-name", "Ada", "-email", "Taken@test.cd"}, pwd: testutil.Password,
			wantErr: member.ErrEmailExists,
		},
		{name: "admin", args: []string{"adduser", "-name", "Ada Admin", "-email", "ada@test.cd", "-admin"}, pwd: testutil.Password},
		{name: "club head", args: []string{"adduser", "-name", "Hank Head", "-email", "hank@test.cd", "-role", "club_head"}, pwd: testutil.Password},
	})

	var identity member.Identity
	env.lastJSON(t, &identity)
	prof, err := env.profiles.GetProfile(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hank Head", prof.Name)
	assert.Equal(t, member.RoleClubHead, prof.Role)
	assert.False(t, prof.IsAdmin)

	admins, err := env.profiles.QueryProfiles(context.Background(), &member.QueryFilter{Search: "ada@test.cd"}, nil)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.True(t, admins[0].IsAdmin)
}

func Test_commandLine_resetPassword(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateMember(t, env.identities, env.profiles, "Awe", "awe@test.cd", member.RoleMember, false)

	ctx := context.Background()
	token, _, err := env.cli.authSvc.SignInWithPassword(ctx, prof.Email, testutil.Password)
	require.NoError(t, err)

	var signedOut []auth.Event
	unsub := env.hub.Subscribe(func(ev auth.Event) {
		if ev.Kind == auth.SignedOut {
			signedOut = append(signedOut, ev)
		}
	})
	defer unsub()

	newPwd := "N3w!Passw0rd#Ok"
	env.run(t, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, pwd: newPwd, wantErr: core.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", prof.Email}, pwd: newPwd},
	})

	_, _, err = env.cli.authSvc.Verify(ctx, token.Token)
	assert.Equal(t, auth.ErrInvalidToken, err, "open sessions are revoked")
	_, _, err = env.cli.authSvc.SignInWithPassword(ctx, prof.Email, newPwd)
	assert.NoError(t, err)

	require.Len(t, signedOut, 1)
	assert.Equal(t, prof.ID, signedOut[0].IdentityID)
	assert.Empty(t, signedOut[0].SessionID)
}

func Test_commandLine_portal(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateMember(t, env.identities, env.profiles, "Ada", "ada@test.cd", member.RoleMember, true)
	mia := testutil.CreateMember(t, env.identities, env.profiles, "Mia", "mia@test.cd", member.RoleMember, false)

	env.run(t, []cliTest{
		{name: "no actor", args: []string{"createchapter", "-name", "Goma"}, wantErr: errHelp},
		{name: "wrong password", args: []string{"createchapter", "-as", admin.Email, "-name", "Goma"}, pwd: "nope", wantErr: auth.ErrInvalidCredentials},
		{name: "not an admin", args: []string{"createchapter", "-as", mia.Email, "-name", "Goma"}, pwd: testutil.Password, wantErr: core.ErrUnauthorized},
		{name: "chapter", args: []string{"createchapter", "-as", admin.Email, "-name", "Goma"}, pwd: testutil.Password},
	})
	var chapter portal.Chapter
	env.lastJSON(t, &chapter)
	assert.Equal(t, "Goma", chapter.Name)
	assert.Equal(t, admin.ID, chapter.CreatedBy)

	env.run(t, []cliTest{
		{
			name: "club of unknown chapter", args: []string{"createclub", "-as", admin.Email, "-name", "Chess", "-chapter", "nope"},
			pwd: testutil.Password, wantErr: portal.ErrChapterNotFound,
		},
		{name: "club", args: []string{"createclub", "-as", admin.Email, "-name", "Chess", "-chapter", chapter.ID}, pwd: testutil.Password},
	})
	var club portal.Club
	env.lastJSON(t, &club)

	// promoting Mia notifies her sessions
	var updated []string
	unsub := env.hub.Subscribe(func(ev auth.Event) {
		if ev.Kind == auth.UserUpdated {
			updated = append(updated, ev.IdentityID)
		}
	})
	defer unsub()

	env.run(t, []cliTest{
		{name: "credits: member", args: []string{"givecredits", "-as", mia.Email, "-to", admin.ID, "-amount", "15", "-reason", "Great talk"}, pwd: testutil.Password, wantErr: core.ErrUnauthorized},
		{name: "assign head", args: []string{"assignhead", "-as", admin.Email, "-user", mia.ID, "-club", club.ID}, pwd: testutil.Password},
	})
	assert.Equal(t, []string{mia.ID}, updated)

	// Mia now heads a club and can award credits
	withPassword(t, testutil.Password)
	err := env.cli.run([]string{"admin", "givecredits", "-as", mia.Email, "-to", admin.ID, "-amount", "500", "-reason", "Great talk"})
	assert.True(t, core.IsValidation(err), "got %v", err)

	env.run(t, []cliTest{
		{name: "credits", args: []string{"givecredits", "-as", mia.Email, "-to", admin.ID, "-amount", "15", "-reason", "Great talk"}, pwd: testutil.Password},
	})
	var tx portal.CreditTransaction
	env.lastJSON(t, &tx)
	assert.Equal(t, mia.ID, tx.AwardedBy)
	assert.Equal(t, 15, tx.Amount)

	prof, err := env.profiles.GetProfile(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, prof.TotalCredits)
}
