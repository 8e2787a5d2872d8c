// Package guard decides whether a session may reach a route.
package guard

import (
	"net/url"

	"github.com/trezcool/clubhub/core/member"
)

type Outcome int

// Outcomes
const (
	// Pending means the session is not resolved yet: render nothing protected, decide later.
	Pending Outcome = iota
	Allow
	// RedirectLogin sends an unauthenticated session to the login page.
	RedirectLogin
	// RedirectHome sends an authenticated but under-privileged session to the landing page.
	RedirectHome
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	}
	return "unknown"
}

type (
	// State is the part of a session a guard looks at.
	State interface {
		Resolved() bool
		User() *member.User
	}

	Decision struct {
		Outcome Outcome
		// Location is where to redirect to; the login location carries the requested one as `next`.
		Location string
	}

	Paths struct {
		Login string
		Home  string
	}

	Guard func(st State, requested string) Decision
)

// Authenticated passes any resolved user.
func (p Paths) Authenticated() Guard {
	return p.require(nil)
}

// ClubHead passes club heads.
func (p Paths) ClubHead() Guard {
	return p.require(member.IsClubHead)
}

// Admin passes admins.
func (p Paths) Admin() Guard {
	return p.require(member.IsAdmin)
}

func (p Paths) require(capability func(*member.User) bool) Guard {
	return func(st State, requested string) Decision {
		if !st.Resolved() {
			return Decision{Outcome: Pending}
		}
		usr := st.User()
		if usr == nil {
			return Decision{Outcome: RedirectLogin, Location: p.loginURL(requested)}
		}
		if capability != nil && !capability(usr) {
			return Decision{Outcome: RedirectHome, Location: p.Home}
		}
		return Decision{Outcome: Allow}
	}
}

func (p Paths) loginURL(requested string) string {
	if requested == "" || requested == p.Login {
		return p.Login
	}
	return p.Login + "?" + url.Values{"next": {requested}}.Encode()
}
