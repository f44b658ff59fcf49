package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var emailFolder = cases.Fold()

// Name is a user's display name.
type Name struct {
	First  string `json:"first"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last"`
}

// Full joins the non-empty name parts.
func (n Name) Full() string {
	return strings.Join(strings.Fields(n.First+" "+n.Middle+" "+n.Last), " ")
}

// User is an account. Unconfirmed registrations have Activated false and
// a ConfirmationKey.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	Activated             bool       `json:"activated"`
	Admin                 bool       `json:"admin"`
	Name                  Name       `json:"name"`
	ConfirmationKey       string     `json:"-"`
	ConfirmationCreatedAt *time.Time `json:"-"`
	LastLogin             *time.Time `json:"last_login,omitempty"`
	CreatedAt             time.Time  `json:"created"`
	UpdatedAt             time.Time  `json:"updated"`
}

// Summary returns the populated reference form of u.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, Name: u.Name}
}

// SocialIdentity links an external login to a user.
type SocialIdentity struct {
	Provider  string
	Subject   string
	UserID    string
	CreatedAt time.Time
}

// NormalizeEmail trims and case-folds email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrInvalidEmail
	}
	address, err := mail.ParseAddress(email)
	if err != nil || address.Address != email || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	return emailFolder.String(email), nil
}

// FoldSearch normalizes a free-text user search term.
func FoldSearch(term string) string {
	return emailFolder.String(strings.TrimSpace(term))
}

// ValidatePassword enforces MinPasswordLength.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// NewRegistration builds an inactive user awaiting confirmation of key.
func NewRegistration(email, key string, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	now, idGenerator = defaults(now, idGenerator)
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}
	createdAt := Stamp(now())
	return User{
		ID:                    userID,
		Email:                 normalized,
		ConfirmationKey:       key,
		ConfirmationCreatedAt: timePtr(createdAt),
		CreatedAt:             createdAt,
		UpdatedAt:             createdAt,
	}, nil
}

// Confirm activates a registration with a password hash and a name.
func (u User) Confirm(passwordHash string, name Name, now func() time.Time) User {
	u.PasswordHash = passwordHash
	u.Name = Name{
		First:  strings.TrimSpace(name.First),
		Middle: strings.TrimSpace(name.Middle),
		Last:   strings.TrimSpace(name.Last),
	}
	u.Activated = true
	u.ConfirmationKey = ""
	u.ConfirmationCreatedAt = nil
	u.UpdatedAt = nowOrDefault(now)
	return u
}

// NewSocialUser builds an activated user for a first social login.
func NewSocialUser(email string, name Name, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	now, idGenerator = defaults(now, idGenerator)
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}
	createdAt := Stamp(now())
	return User{
		ID:        userID,
		Email:     normalized,
		Activated: true,
		Name:      name,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}
