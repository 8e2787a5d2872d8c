package member

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
)

// ProfileReader fetches stored profile rows.
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
}

// Resolver turns raw identities into normalized Users.
type Resolver struct {
	profiles ProfileReader
	logger   core.Logger
}

func NewResolver(profiles ProfileReader, logger core.Logger) *Resolver {
	return &Resolver{profiles: profiles, logger: logger}
}

// Resolve never fails: when the profile cannot be fetched, the User is derived from the identity alone.
func (r *Resolver) Resolve(ctx context.Context, identity Identity) User {
	prof, err := r.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		if errors.Cause(err) != core.ErrNotFound {
			r.logger.Warn("fetching profile, falling back to identity metadata", err, map[string]interface{}{"identity": identity.ID})
		}
		return FromIdentity(identity)
	}
	return FromProfile(prof)
}

func FromProfile(p Profile) User {
	return User{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		Role:         ParseRole(string(p.Role)),
		AdminFlag:    p.IsAdmin,
		Club:         p.ClubID,
		Chapter:      p.ChapterID,
		TotalCredits: p.TotalCredits,
		JoinDate:     p.JoinedAt.UTC(),
		Phone:        p.Phone,
		City:         p.City,
		State:        p.State,
		College:      p.College,
	}
}

// FromIdentity derives a best-effort User from the identity metadata.
// The admin flag is never taken from metadata.
func FromIdentity(identity Identity) User {
	md := identity.Metadata
	name := md.String("name")
	if name == "" {
		name = strings.SplitN(identity.Email, "@", 2)[0]
	}
	return User{
		ID:       identity.ID,
		Name:     name,
		Email:    identity.Email,
		Role:     ParseRole(md.String("role")),
		Club:     md.String("club"),
		Chapter:  md.String("chapter"),
		JoinDate: identity.CreatedAt.UTC(),
		Phone:    md.String("phone"),
		City:     md.String("city"),
		State:    md.String("state"),
		College:  md.String("college"),
	}
}

// NewProfile builds the profile row provisioned right after sign-up.
func NewProfile(identity Identity, isAdmin bool) Profile {
	usr := FromIdentity(identity)
	return Profile{
		ID:        usr.ID,
		Name:      usr.Name,
		Email:     usr.Email,
		Role:      usr.Role,
		IsAdmin:   isAdmin,
		ClubID:    usr.Club,
		ChapterID: usr.Chapter,
		JoinedAt:  usr.JoinDate,
		Phone:     usr.Phone,
		City:      usr.City,
		State:     usr.State,
		College:   usr.College,
	}
}
