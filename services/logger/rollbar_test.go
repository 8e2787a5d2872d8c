package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
)

func Test_split(t *testing.T) {
	mia := member.User{ID: "mia", Name: "Mia"}
	jules := &member.User{ID: "jules", Name: "Jules"}
	errDB := errors.New("db down")

	tests := []struct {
		name       string
		args       []interface{}
		wantUser   string
		wantErr    error
		wantExtras map[string]interface{}
	}{
		{name: "nothing"},
		{name: "first member wins", args: []interface{}{jules, mia}, wantUser: "jules"},
		{name: "member by value", args: []interface{}{mia, "x"}, wantUser: "mia", wantExtras: map[string]interface{}{"arg_0": "x"}},
		{
			name:       "maps merged",
			args:       []interface{}{map[string]interface{}{"a": 1}, map[string]interface{}{"b": 2}},
			wantExtras: map[string]interface{}{"a": 1, "b": 2},
		},
		{
			name:       "extra errors become extras",
			args:       []interface{}{errDB, errors.New("retry failed")},
			wantErr:    errDB,
			wantExtras: map[string]interface{}{"error_0": "retry failed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, extras, err := split(tt.args)
			if tt.wantUser == "" {
				assert.Nil(t, usr)
			} else if assert.NotNil(t, usr) {
				assert.Equal(t, tt.wantUser, usr.ID)
			}
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.wantExtras, extras)
		})
	}
}

func TestRollbarLogger_log(t *testing.T) {
	conf := &core.Config{AppName: "ClubHub", Env: "TEST"}
	logger := NewRollbarLogger("test", conf)
	defer logger.Close()

	var out bytes.Buffer
	logger.std = log.New(&out, "TEST : ", 0)

	mia := member.User{ID: "mia", Name: "Mia", Email: "mia@test.cd"}
	logger.Info("signed in", mia)
	logger.Warn("publisher down", errors.New("connection refused"), map[string]interface{}{"queue": "credits"})
	logger.Error("plain failure")

	assert.Contains(t, out.String(), "[info] signed in (member mia)")
	assert.Contains(t, out.String(), "[warning] publisher down: connection refused")
	assert.Contains(t, out.String(), "map[queue:credits]")
	assert.Contains(t, out.String(), "[error] plain failure")
}
