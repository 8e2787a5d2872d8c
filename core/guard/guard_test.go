package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/clubhub/core/member"
)

type state struct {
	resolved bool
	usr      *member.User
}

func (s state) Resolved() bool     { return s.resolved }
func (s state) User() *member.User { return s.usr }

func TestGuards(t *testing.T) {
	paths := Paths{Login: "/login", Home: "/dashboard"}
	var (
		pending = state{}
		anon    = state{resolved: true}
		mbr     = state{resolved: true, usr: &member.User{ID: "1", Role: member.RoleMember}}
		head    = state{resolved: true, usr: &member.User{ID: "2", Role: member.RoleClubHead}}
		admin   = state{resolved: true, usr: &member.User{ID: "3", Role: member.RoleMember, AdminFlag: true}}
	)

	tests := []struct {
		name      string
		guard     Guard
		st        state
		requested string
		want      Decision
	}{
		{name: "auth: pending", guard: paths.Authenticated(), st: pending, requested: "/events", want: Decision{Outcome: Pending}},
		{name: "auth: signed out", guard: paths.Authenticated(), st: anon, requested: "/events", want: Decision{Outcome: RedirectLogin, Location: "/login?next=%2Fevents"}},
		{name: "auth: signed out on login page", guard: paths.Authenticated(), st: anon, requested: "/login", want: Decision{Outcome: RedirectLogin, Location: "/login"}},
		{name: "auth: member", guard: paths.Authenticated(), st: mbr, want: Decision{Outcome: Allow}},
		{name: "club head: member", guard: paths.ClubHead(), st: mbr, want: Decision{Outcome: RedirectHome, Location: "/dashboard"}},
		{name: "club head: club head", guard: paths.ClubHead(), st: head, want: Decision{Outcome: Allow}},
		{name: "club head: admin", guard: paths.ClubHead(), st: admin, want: Decision{Outcome: RedirectHome, Location: "/dashboard"}},
		{name: "club head: pending", guard: paths.ClubHead(), st: pending, want: Decision{Outcome: Pending}},
		{name: "admin: club head", guard: paths.Admin(), st: head, want: Decision{Outcome: RedirectHome, Location: "/dashboard"}},
		{name: "admin: admin flag", guard: paths.Admin(), st: admin, want: Decision{Outcome: Allow}},
		{name: "admin: signed out", guard: paths.Admin(), st: anon, requested: "/admin?tab=1", want: Decision{Outcome: RedirectLogin, Location: "/login?next=%2Fadmin%3Ftab%3D1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.guard(tt.st, tt.requested)
			assert.Equal(t, tt.want, got, "outcome %s", got.Outcome)
		})
	}
}
