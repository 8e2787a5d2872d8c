package portal

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
)

var (
	// errors
	ErrAlreadyRegistered   = errors.WithMessage(core.ErrConflict, "member is already registered to this event")
	ErrChapterExists       = errors.WithMessage(core.ErrConflict, "a chapter with this name already exists")
	ErrClubExists          = errors.WithMessage(core.ErrConflict, "a club with this name already exists in this chapter")
	ErrChapterNotFound     = errors.WithMessage(core.ErrNotFound, "chapter not found")
	ErrClubNotFound        = errors.WithMessage(core.ErrNotFound, "club not found")
	ErrEventNotFound       = errors.WithMessage(core.ErrNotFound, "event not found")
	ErrParticipantNotFound = errors.WithMessage(core.ErrNotFound, "member is not registered to this event")
	ErrMemberNotFound      = errors.WithMessage(core.ErrNotFound, "member not found")
)

type (
	// Actor is the session a privileged operation runs for.
	Actor interface {
		User() *member.User
		// Refresh reloads the user after an operation that changed it.
		Refresh(ctx context.Context) error
	}

	// Notifier tells the sessions of another user that its data changed.
	Notifier interface {
		NotifyUserUpdated(ctx context.Context, identityID string) error
	}

	// CreditPublisher forwards appended ledger entries to downstream consumers.
	CreditPublisher interface {
		PublishCredit(ctx context.Context, tx CreditTransaction) error
	}

	Repository interface {
		CreateChapter(ctx context.Context, chapter Chapter) (Chapter, error)
		GetChapter(ctx context.Context, id string) (Chapter, error)
		ListChapters(ctx context.Context) ([]Chapter, error)

		// CreateClub fails with a core.ErrNotFound cause when the chapter does not exist.
		CreateClub(ctx context.Context, club Club) (Club, error)
		GetClub(ctx context.Context, id string) (Club, error)
		// ListClubs lists every club, or the clubs of chapterID when set.
		ListClubs(ctx context.Context, chapterID string) ([]Club, error)
		ListClubMembers(ctx context.Context, clubID string) ([]ClubMember, error)
		// AssignClubHead sets the profile's role and club and adds the membership, atomically.
		AssignClubHead(ctx context.Context, userID, clubID string, at time.Time) error
		// UpdateMembership sets the profile's club and chapter and adds the membership, atomically.
		UpdateMembership(ctx context.Context, userID, clubID, chapterID string, at time.Time) error

		CreateEvent(ctx context.Context, evt Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		// ListEvents lists the events dated at or after since, soonest first.
		ListEvents(ctx context.Context, since time.Time) ([]Event, error)
		// AddParticipant fails with a core.ErrConflict cause when the member is already registered.
		AddParticipant(ctx context.Context, eventID, userID string, at time.Time) error
		ListParticipants(ctx context.Context, eventID string) ([]Participant, error)
		// MarkAttendance sets attended on the participant. When it was not set yet, tx is appended
		// to the ledger in the same transaction and awarded is true.
		MarkAttendance(ctx context.Context, eventID, userID string, tx CreditTransaction) (awarded bool, err error)

		// AppendCredit appends tx to the ledger and adds its amount to the recipient's total.
		AppendCredit(ctx context.Context, tx CreditTransaction) (CreditTransaction, error)
		ListCredits(ctx context.Context, recipientID string) ([]CreditTransaction, error)
	}

	Service struct {
		repo      Repository
		profiles  member.ProfileReader
		notifier  Notifier
		publisher CreditPublisher
		mailSvc   core.EmailService
		validate  *validator.Validate
		logger    core.Logger
		now       func() time.Time
	}
)

// NewService builds the facade. publisher may be nil.
func NewService(
	repo Repository,
	profiles member.ProfileReader,
	notifier Notifier,
	publisher CreditPublisher,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:      repo,
		profiles:  profiles,
		notifier:  notifier,
		publisher: publisher,
		mailSvc:   mailSvc,
		validate:  validate,
		logger:    logger,
		now:       time.Now,
	}
}

// GiveCredits appends a CreditTransaction awarded by the actor.
func (svc *Service) GiveCredits(ctx context.Context, actor Actor, in GiveCredits) (CreditTransaction, error) {
	usr := actor.User()
	if !member.CanManageEvents(usr) {
		return CreditTransaction{}, core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return CreditTransaction{}, err
	}

	if in.EventID != "" {
		if _, err := svc.repo.GetEvent(ctx, in.EventID); err != nil {
			return CreditTransaction{}, notFound(err, ErrEventNotFound, "getting event")
		}
	}

	tx, err := svc.repo.AppendCredit(ctx, CreditTransaction{
		ID:          uuid.NewString(),
		RecipientID: in.RecipientID,
		AwardedBy:   usr.ID,
		Amount:      in.Amount,
		Reason:      in.Reason,
		EventID:     in.EventID,
		CreatedAt:   svc.now().UTC(),
	})
	if err != nil {
		return CreditTransaction{}, notFound(err, ErrMemberNotFound, "appending credit transaction")
	}
	svc.creditsAwarded(ctx, actor, tx)
	return tx, nil
}

// CreateEvent inserts an event created by the actor.
func (svc *Service) CreateEvent(ctx context.Context, actor Actor, in NewEvent) (Event, error) {
	usr := actor.User()
	if !member.CanManageEvents(usr) {
		return Event{}, core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return Event{}, err
	}

	evt, err := svc.repo.CreateEvent(ctx, Event{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		Date:        in.Date.UTC(),
		Credits:     in.Credits,
		CreatedBy:   usr.ID,
		CreatedAt:   svc.now().UTC(),
	})
	if err != nil {
		return Event{}, errors.Wrap(err, "creating event")
	}
	return evt, nil
}

// AddMemberToEvent registers a member to an event. A member registers at most once.
func (svc *Service) AddMemberToEvent(ctx context.Context, actor Actor, in EventMember) error {
	if !member.CanManageEvents(actor.User()) {
		return core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return err
	}

	if _, err := svc.repo.GetEvent(ctx, in.EventID); err != nil {
		return notFound(err, ErrEventNotFound, "getting event")
	}
	if err := svc.repo.AddParticipant(ctx, in.EventID, in.MemberID, svc.now().UTC()); err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return ErrAlreadyRegistered
		}
		return notFound(err, ErrMemberNotFound, "adding participant")
	}
	return nil
}

// MarkAttendance marks a registered member as attended and credits them the event's value.
// Credits are awarded once: marking an attended member again succeeds and returns a nil transaction.
func (svc *Service) MarkAttendance(ctx context.Context, actor Actor, in EventMember) (*CreditTransaction, error) {
	usr := actor.User()
	if !member.CanManageEvents(usr) {
		return nil, core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return nil, err
	}

	evt, err := svc.repo.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, notFound(err, ErrEventNotFound, "getting event")
	}

	tx := CreditTransaction{
		ID:          uuid.NewString(),
		RecipientID: in.MemberID,
		AwardedBy:   usr.ID,
		Amount:      evt.Credits,
		Reason:      "Attended " + evt.Name,
		EventID:     evt.ID,
		CreatedAt:   svc.now().UTC(),
	}
	awarded, err := svc.repo.MarkAttendance(ctx, evt.ID, in.MemberID, tx)
	if err != nil {
		return nil, notFound(err, ErrParticipantNotFound, "marking attendance")
	}
	if !awarded {
		return nil, nil
	}
	svc.creditsAwarded(ctx, actor, tx)
	return &tx, nil
}

// CreateChapter inserts a chapter created by the actor.
func (svc *Service) CreateChapter(ctx context.Context, actor Actor, in NewChapter) (Chapter, error) {
	usr := actor.User()
	if !member.IsAdmin(usr) {
		return Chapter{}, core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return Chapter{}, err
	}

	chapter, err := svc.repo.CreateChapter(ctx, Chapter{
		ID:        uuid.NewString(),
		Name:      in.Name,
		CreatedBy: usr.ID,
		CreatedAt: svc.now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return Chapter{}, ErrChapterExists
		}
		return Chapter{}, errors.Wrap(err, "creating chapter")
	}
	return chapter, nil
}

// CreateClub inserts a club of an existing chapter.
func (svc *Service) CreateClub(ctx context.Context, actor Actor, in NewClub) (Club, error) {
	usr := actor.User()
	if !member.IsAdmin(usr) {
		return Club{}, core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return Club{}, err
	}

	club, err := svc.repo.CreateClub(ctx, Club{
		ID:        uuid.NewString(),
		Name:      in.Name,
		ChapterID: in.ChapterID,
		CreatedBy: usr.ID,
		CreatedAt: svc.now().UTC(),
	})
	if err != nil {
		switch errors.Cause(err) {
		case core.ErrConflict:
			return Club{}, ErrClubExists
		case core.ErrNotFound:
			return Club{}, ErrChapterNotFound
		}
		return Club{}, errors.Wrap(err, "creating club")
	}
	return club, nil
}

// AssignClubHead makes a member the head of a club. Assigning twice is a no-op.
func (svc *Service) AssignClubHead(ctx context.Context, actor Actor, in AssignClubHead) error {
	if !member.IsAdmin(actor.User()) {
		return core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return err
	}

	if _, err := svc.repo.GetClub(ctx, in.ClubID); err != nil {
		return notFound(err, ErrClubNotFound, "getting club")
	}
	if err := svc.repo.AssignClubHead(ctx, in.UserID, in.ClubID, svc.now().UTC()); err != nil {
		return notFound(err, member.ErrProfileNotFound, "assigning club head")
	}
	svc.userChanged(ctx, actor, in.UserID)
	return nil
}

// UpdateMembership moves the actor to a club of a chapter.
func (svc *Service) UpdateMembership(ctx context.Context, actor Actor, in UpdateMembership) error {
	usr := actor.User()
	if usr == nil {
		return core.ErrUnauthorized
	}
	if err := in.Validate(svc.validate); err != nil {
		return err
	}

	club, err := svc.repo.GetClub(ctx, in.ClubID)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "club_id", Error: ErrClubNotFound.Error()})
		}
		return errors.Wrap(err, "getting club")
	}
	if club.ChapterID != in.ChapterID {
		return core.NewValidationError(nil, core.FieldError{Field: "club_id", Error: "club does not belong to this chapter"})
	}

	if err = svc.repo.UpdateMembership(ctx, usr.ID, club.ID, club.ChapterID, svc.now().UTC()); err != nil {
		return notFound(err, member.ErrProfileNotFound, "updating membership")
	}
	svc.refresh(ctx, actor)
	return nil
}

// Reads

func (svc *Service) ListChapters(ctx context.Context, actor Actor) ([]Chapter, error) {
	if actor.User() == nil {
		return nil, core.ErrUnauthorized
	}
	return svc.repo.ListChapters(ctx)
}

func (svc *Service) ListClubs(ctx context.Context, actor Actor, chapterID string) ([]Club, error) {
	if actor.User() == nil {
		return nil, core.ErrUnauthorized
	}
	return svc.repo.ListClubs(ctx, core.CleanString(chapterID))
}

func (svc *Service) GetClub(ctx context.Context, actor Actor, id string) (Club, error) {
	if actor.User() == nil {
		return Club{}, core.ErrUnauthorized
	}
	club, err := svc.repo.GetClub(ctx, id)
	if err != nil {
		return Club{}, notFound(err, ErrClubNotFound, "getting club")
	}
	return club, nil
}

func (svc *Service) ListClubMembers(ctx context.Context, actor Actor, clubID string) ([]ClubMember, error) {
	if !member.CanManageEvents(actor.User()) {
		return nil, core.ErrUnauthorized
	}
	if _, err := svc.repo.GetClub(ctx, clubID); err != nil {
		return nil, notFound(err, ErrClubNotFound, "getting club")
	}
	return svc.repo.ListClubMembers(ctx, clubID)
}

// ListEvents lists events soonest first. With upcoming set, past events are left out.
func (svc *Service) ListEvents(ctx context.Context, actor Actor, upcoming bool) ([]Event, error) {
	if actor.User() == nil {
		return nil, core.ErrUnauthorized
	}
	var since time.Time
	if upcoming {
		since = svc.now().UTC()
	}
	return svc.repo.ListEvents(ctx, since)
}

func (svc *Service) ListParticipants(ctx context.Context, actor Actor, eventID string) ([]Participant, error) {
	if !member.CanManageEvents(actor.User()) {
		return nil, core.ErrUnauthorized
	}
	if _, err := svc.repo.GetEvent(ctx, eventID); err != nil {
		return nil, notFound(err, ErrEventNotFound, "getting event")
	}
	return svc.repo.ListParticipants(ctx, eventID)
}

// CreditHistory lists the actor's own ledger entries, newest first.
func (svc *Service) CreditHistory(ctx context.Context, actor Actor) ([]CreditTransaction, error) {
	usr := actor.User()
	if usr == nil {
		return nil, core.ErrUnauthorized
	}
	return svc.repo.ListCredits(ctx, usr.ID)
}

// creditsAwarded runs the side effects of an appended ledger entry. None of them fails the operation.
func (svc *Service) creditsAwarded(ctx context.Context, actor Actor, tx CreditTransaction) {
	svc.userChanged(ctx, actor, tx.RecipientID)

	if svc.publisher != nil {
		if err := svc.publisher.PublishCredit(ctx, tx); err != nil {
			svc.logger.Warn("publishing credit transaction", err, map[string]interface{}{"transaction": tx.ID})
		}
	}

	prof, err := svc.profiles.GetProfile(ctx, tx.RecipientID)
	if err != nil {
		svc.logger.Warn("getting recipient profile", err, map[string]interface{}{"recipient": tx.RecipientID})
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: prof.Name, Address: prof.Email}},
		Subject:      "You earned credits!",
		TemplateName: "credits_awarded",
		TemplateData: map[string]interface{}{"Name": prof.Name, "Amount": tx.Amount, "Reason": tx.Reason},
	})
}

// userChanged refreshes the actor's session when it is the changed user, or notifies the user's sessions otherwise.
func (svc *Service) userChanged(ctx context.Context, actor Actor, userID string) {
	if usr := actor.User(); usr != nil && usr.ID == userID {
		svc.refresh(ctx, actor)
		return
	}
	if err := svc.notifier.NotifyUserUpdated(ctx, userID); err != nil {
		svc.logger.Warn("notifying user update", err, map[string]interface{}{"user": userID})
	}
}

func (svc *Service) refresh(ctx context.Context, actor Actor) {
	if err := actor.Refresh(ctx); err != nil {
		svc.logger.Warn("refreshing session", err, actor.User())
	}
}

// notFound replaces a not-found failure with the domain error, and wraps any other.
func notFound(err, domainErr error, msg string) error {
	if errors.Cause(err) == core.ErrNotFound {
		return domainErr
	}
	return errors.Wrap(err, msg)
}
