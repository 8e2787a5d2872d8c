package portal

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clubhub/core"
)

type (
	Chapter struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	Club struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		ChapterID string    `json:"chapter_id"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	ClubMember struct {
		ClubID   string    `json:"club_id"`
		UserID   string    `json:"user_id"`
		JoinedAt time.Time `json:"joined_at"` // UTC
	}

	Event struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Location    string    `json:"location"`
		Date        time.Time `json:"date"` // UTC
		Credits     int       `json:"credits"`
		CreatedBy   string    `json:"created_by"`
		CreatedAt   time.Time `json:"created_at"` // UTC
	}

	// Participant is an EventParticipant row joined with the member's name and email.
	Participant struct {
		EventID      string    `json:"event_id"`
		UserID       string    `json:"user_id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		Attended     bool      `json:"attended"`
		RegisteredAt time.Time `json:"registered_at"` // UTC
	}

	// CreditTransaction is a ledger entry. An empty AwardedBy means system-awarded.
	CreditTransaction struct {
		ID          string    `json:"id"`
		RecipientID string    `json:"recipient_id"`
		AwardedBy   string    `json:"awarded_by,omitempty"`
		Amount      int       `json:"amount"`
		Reason      string    `json:"reason"`
		EventID     string    `json:"event_id,omitempty"`
		CreatedAt   time.Time `json:"created_at"` // UTC
	}
)

// Inputs

type GiveCredits struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Amount      int    `json:"amount" validate:"min=1,max=100"`
	Reason      string `json:"reason" validate:"required,notblank,min=5,max=255"`
	EventID     string `json:"event_id"`
}

func (in *GiveCredits) Validate(validate *validator.Validate) error {
	in.RecipientID = core.CleanString(in.RecipientID)
	in.Reason = core.CleanString(in.Reason)
	in.EventID = core.CleanString(in.EventID)
	return validate.Struct(in)
}

type NewEvent struct {
	Name        string    `json:"name" validate:"required,min=3,max=255"`
	Description string    `json:"description" validate:"required,notblank,min=10"`
	Date        time.Time `json:"date" validate:"required"`
	Credits     int       `json:"credits" validate:"min=1,max=100"`
	Location    string    `json:"location" validate:"required,min=3,max=255"`
}

func (in *NewEvent) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Description = core.CleanString(in.Description)
	in.Location = core.CleanString(in.Location)
	return validate.Struct(in)
}

// EventMember designates a member of an event, for registration and attendance.
type EventMember struct {
	EventID  string `json:"event_id" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
}

func (in *EventMember) Validate(validate *validator.Validate) error {
	in.EventID = core.CleanString(in.EventID)
	in.MemberID = core.CleanString(in.MemberID)
	return validate.Struct(in)
}

type NewChapter struct {
	Name string `json:"name" validate:"required,min=3,max=50"`
}

func (in *NewChapter) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	return validate.Struct(in)
}

type NewClub struct {
	Name      string `json:"name" validate:"required,min=3,max=50"`
	ChapterID string `json:"chapter_id" validate:"required"`
}

func (in *NewClub) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.ChapterID = core.CleanString(in.ChapterID)
	return validate.Struct(in)
}

type AssignClubHead struct {
	UserID string `json:"user_id" validate:"required"`
	ClubID string `json:"club_id" validate:"required"`
}

func (in *AssignClubHead) Validate(validate *validator.Validate) error {
	in.UserID = core.CleanString(in.UserID)
	in.ClubID = core.CleanString(in.ClubID)
	return validate.Struct(in)
}

type UpdateMembership struct {
	ClubID    string `json:"club_id" validate:"required"`
	ChapterID string `json:"chapter_id" validate:"required"`
}

func (in *UpdateMembership) Validate(validate *validator.Validate) error {
	in.ClubID = core.CleanString(in.ClubID)
	in.ChapterID = core.CleanString(in.ChapterID)
	return validate.Struct(in)
}
