// Package inmemdb keeps every collection in memory, with the uniqueness and reference checks of the SQL schema.
package inmemdb

import (
	"sync"

	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
)

type (
	// DB guards every table with one lock so multi-table writes are atomic.
	DB struct {
		mu sync.RWMutex

		identities   map[string]*auth.Credentials
		sessions     map[string]*auth.Session
		profiles     map[string]*member.Profile
		chapters     map[string]*portal.Chapter
		clubs        map[string]*portal.Club
		clubMembers  map[memberKey]*portal.ClubMember
		events       map[string]*portal.Event
		participants map[memberKey]*participant
		credits      []portal.CreditTransaction
	}

	// memberKey is a (parent, user) pair: (club, user) or (event, user).
	memberKey struct {
		parentID string
		userID   string
	}

	participant struct {
		eventID      string
		userID       string
		attended     bool
		registeredAt int64 // unix nano, keeps registration order
	}
)

func Open() *DB {
	return &DB{
		identities:   make(map[string]*auth.Credentials),
		sessions:     make(map[string]*auth.Session),
		profiles:     make(map[string]*member.Profile),
		chapters:     make(map[string]*portal.Chapter),
		clubs:        make(map[string]*portal.Club),
		clubMembers:  make(map[memberKey]*portal.ClubMember),
		events:       make(map[string]*portal.Event),
		participants: make(map[memberKey]*participant),
	}
}
