package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/clubhub/apps/api/echo"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
	emailsvc "github.com/trezcool/clubhub/services/email"
	logsvc "github.com/trezcool/clubhub/services/logger"
	inmemdb "github.com/trezcool/clubhub/storage/database/inmem"
	testutil "github.com/trezcool/clubhub/tests"
)

type testApp struct {
	Server
	identities auth.Repository
	profiles   member.Repository
	portal     portal.Repository
	authSvc    *auth.Service
	mailSvc    *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.Config()
	logger := logsvc.NewLoggerMock()
	validate, translator := testutil.NewValidatorTranslator()

	// set up DB & repos
	db := inmemdb.Open()
	identities := inmemdb.NewIdentityRepository(db)
	profiles := inmemdb.NewProfileRepository(db)
	portalRepo := inmemdb.NewPortalRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	authSvc := auth.NewService(identities, profiles, auth.NewHub(), mailSvc, validate, logger, conf)

	// set up server
	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		AuthSvc:        authSvc,
		MemberSvc:      member.NewService(profiles, validate),
		PortalSvc:      portal.NewService(portalRepo, profiles, authSvc, nil, mailSvc, validate, logger),
		Resolver:       member.NewResolver(profiles, logger),
		Profiles:       profiles,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &testApp{
		Server:     srv,
		identities: identities,
		profiles:   profiles,
		portal:     portalRepo,
		authSvc:    authSvc,
		mailSvc:    mailSvc,
	}
}

// createMember stores a member and signs them in.
func (app *testApp) createMember(t *testing.T, name, email string, role member.Role, isAdmin bool) (member.Profile, string) {
	t.Helper()

	prof := testutil.CreateMember(t, app.identities, app.profiles, name, email, role, isAdmin)
	token, _, err := app.authSvc.SignInWithPassword(context.Background(), email, testutil.Password)
	require.NoError(t, err)
	return prof, token.Token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
