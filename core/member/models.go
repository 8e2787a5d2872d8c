package member

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clubhub/core"
)

type Role string

// Roles
const (
	RoleMember   Role = "member"
	RoleClubHead Role = "club_head"
	RoleAdmin    Role = "admin"
)

var (
	AllRoles = []Role{RoleMember, RoleClubHead, RoleAdmin}

	Roles = []RoleInfo{
		{Name: "Member", Value: RoleMember},
		{Name: "Club Head", Value: RoleClubHead},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole maps unknown or empty values to RoleMember.
func ParseRole(s string) Role {
	if r := Role(core.CleanString(s, true /* lower */)); r.Valid() {
		return r
	}
	return RoleMember
}

// Metadata is the free-form map attached to an Identity at sign-up.
type Metadata map[string]interface{}

func (md Metadata) String(key string) string {
	if v, ok := md[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Identity is the raw authentication identity handed out by the auth service.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"` // UTC
	Metadata  Metadata  `json:"metadata"`
}

// Profile is the stored profile row. It is authoritative whenever it exists.
type Profile struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	IsAdmin      bool
	ClubID       string
	ChapterID    string
	TotalCredits int
	JoinedAt     time.Time
	Phone        string
	City         string
	State        string
	College      string
}

// User is the normalized application user.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	AdminFlag    bool      `json:"is_admin"`
	Club         string    `json:"club,omitempty"`
	Chapter      string    `json:"chapter,omitempty"`
	TotalCredits int       `json:"total_credits"`
	JoinDate     time.Time `json:"join_date"` // UTC
	Phone        string    `json:"phone,omitempty"`
	City         string    `json:"city,omitempty"`
	State        string    `json:"state,omitempty"`
	College      string    `json:"college,omitempty"`
}

// NewAccount contains information needed to register a new account.
type NewAccount struct {
	Name            string `json:"name" validate:"required,min=2,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Phone           string `json:"phone" validate:"omitempty,phone,max=50"`
	City            string `json:"city" validate:"omitempty,max=100"`
	State           string `json:"state" validate:"omitempty,max=100"`
	College         string `json:"college" validate:"omitempty,max=255"`

	// only settable by trusted callers (admin CLI)
	Role    Role `json:"-"`
	IsAdmin bool `json:"-"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.CleanString(na.Phone)
	na.City = core.CleanString(na.City)
	na.State = core.CleanString(na.State)
	na.College = core.CleanString(na.College)
	if na.Role == "" {
		na.Role = RoleMember
	}
	return validate.Struct(na)
}

// Metadata returns the identity metadata recorded at sign-up.
func (na NewAccount) Metadata() Metadata {
	md := Metadata{"name": na.Name, "role": string(na.Role)}
	for k, v := range map[string]string{"phone": na.Phone, "city": na.City, "state": na.State, "college": na.College} {
		if v != "" {
			md[k] = v
		}
	}
	return md
}

// ProfileDetails defines the profile fields a user may change on their own profile.
type ProfileDetails struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Phone   string `json:"phone" validate:"omitempty,phone,max=50"`
	City    string `json:"city" validate:"omitempty,max=100"`
	State   string `json:"state" validate:"omitempty,max=100"`
	College string `json:"college" validate:"omitempty,max=255"`
}

func (pd *ProfileDetails) Validate(validate *validator.Validate) error {
	pd.Name = core.CleanString(pd.Name)
	pd.Phone = core.CleanString(pd.Phone)
	pd.City = core.CleanString(pd.City)
	pd.State = core.CleanString(pd.State)
	pd.College = core.CleanString(pd.College)
	return validate.Struct(pd)
}

// OrderingFields are the profile fields members can be ordered by.
var OrderingFields = map[string]bool{"name": true, "email": true, "role": true, "total_credits": true, "joined_at": true}

// DefaultOrdering applies when no valid ordering is requested.
var DefaultOrdering = core.DBOrdering{Field: "name", Ascending: true}

type QueryFilter struct {
	Search    string   `query:"search"`
	Roles     []string `query:"role" validate:"omitempty,role"`
	ClubID    string   `query:"club"`
	ChapterID string   `query:"chapter"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.ClubID == "" && qf.ChapterID == ""
}

func (qf *QueryFilter) Validate(validate *validator.Validate) error {
	qf.Clean()
	return validate.Struct(qf)
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClubID = core.CleanString(qf.ClubID)
	qf.ChapterID = core.CleanString(qf.ChapterID)
}
