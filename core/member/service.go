package member

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
)

var (
	// errors
	ErrProfileNotFound = errors.WithMessage(core.ErrNotFound, "profile not found")
	ErrEmailExists     = errors.WithMessage(core.ErrConflict, "an account with this email already exists")
)

type (
	Repository interface {
		ProfileReader
		CreateProfile(ctx context.Context, prof Profile) (Profile, error)
		UpdateProfileDetails(ctx context.Context, id string, details ProfileDetails) (Profile, error)
		// QueryProfiles applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Profile.Name or Profile.Email.
		QueryProfiles(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Profile, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	prof, err := svc.repo.GetProfile(ctx, id)
	if err != nil {
		return User{}, err
	}
	return FromProfile(prof), nil
}

// Query lists members. Admin only.
func (svc *Service) Query(ctx context.Context, actor *User, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if !IsAdmin(actor) {
		return nil, core.ErrUnauthorized
	}
	if filter != nil {
		if err := filter.Validate(svc.validate); err != nil {
			return nil, err
		}
	}
	for _, ord := range ordering {
		if !OrderingFields[ord.Field] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "cannot order by " + ord.Field})
		}
	}
	profs, err := svc.repo.QueryProfiles(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	users := make([]User, 0, len(profs))
	for _, p := range profs {
		users = append(users, FromProfile(p))
	}
	return users, nil
}

// UpdateDetails changes the actor's own profile fields.
func (svc *Service) UpdateDetails(ctx context.Context, actor *User, details ProfileDetails) (User, error) {
	if actor == nil {
		return User{}, core.ErrUnauthorized
	}
	if err := details.Validate(svc.validate); err != nil {
		return User{}, err
	}
	prof, err := svc.repo.UpdateProfileDetails(ctx, actor.ID, details)
	if err != nil {
		return User{}, errors.Wrap(err, "updating profile")
	}
	return FromProfile(prof), nil
}
