package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
)

type profileRepository struct {
	db *DB
}

var _ member.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) *profileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) CreateProfile(_ context.Context, prof member.Profile) (member.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.identities[prof.ID]; !ok {
		return member.Profile{}, errIdentityNotFound
	}
	if _, ok := repo.db.profiles[prof.ID]; ok {
		return member.Profile{}, errors.WithMessage(core.ErrConflict, "profile exists")
	}
	for _, p := range repo.db.profiles {
		if p.Email == prof.Email {
			return member.Profile{}, errors.WithMessage(core.ErrConflict, "email exists")
		}
	}
	repo.db.profiles[prof.ID] = &prof
	return prof, nil
}

func (repo *profileRepository) GetProfile(_ context.Context, id string) (member.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if prof, ok := repo.db.profiles[id]; ok {
		return *prof, nil
	}
	return member.Profile{}, member.ErrProfileNotFound
}

func (repo *profileRepository) UpdateProfileDetails(_ context.Context, id string, details member.ProfileDetails) (member.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prof, ok := repo.db.profiles[id]
	if !ok {
		return member.Profile{}, member.ErrProfileNotFound
	}
	prof.Name = details.Name
	prof.Phone = details.Phone
	prof.City = details.City
	prof.State = details.State
	prof.College = details.College
	return *prof, nil
}

func (repo *profileRepository) QueryProfiles(_ context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	profs := make([]member.Profile, 0, len(repo.db.profiles))
	for _, p := range repo.db.profiles {
		if matchProfile(p, filter) {
			profs = append(profs, *p)
		}
	}

	orderList := core.RestrictOrdering(ordering, member.OrderingFields, member.DefaultOrdering)
	sort.SliceStable(profs, func(i, j int) bool {
		for _, ord := range orderList {
			if c := compareProfiles(profs[i], profs[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return profs[i].ID < profs[j].ID
	})
	return profs, nil
}

func matchProfile(p *member.Profile, filter *member.QueryFilter) bool {
	if filter == nil || filter.IsEmpty() {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.Email), search) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, r := range filter.Roles {
			if member.Role(r) == p.Role {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ClubID != "" && p.ClubID != filter.ClubID {
		return false
	}
	if filter.ChapterID != "" && p.ChapterID != filter.ChapterID {
		return false
	}
	return true
}

func compareProfiles(a, b member.Profile, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(string(a.Role), string(b.Role))
	case "total_credits":
		return a.TotalCredits - b.TotalCredits
	case "joined_at":
		return a.JoinedAt.Compare(b.JoinedAt)
	}
	return 0
}
