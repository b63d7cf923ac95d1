package domain

import (
	"strings"
	"time"
)

type ID string

// UserIdentity is fixed at creation. No update path accepts it.
type UserIdentity struct {
	ID        ID
	Username  string
	CreatedAt time.Time
}

// UserProfile holds everything an update may change.
type UserProfile struct {
	Email     string
	FirstName string
	LastName  *string
	Biography *string
	Active    bool
}

type User struct {
	UserIdentity
	UserProfile
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize returns u with username and email lower-cased and trimmed.
func (u User) Normalize() User {
	u.Username = NormalizeUsername(u.Username)
	u.Email = NormalizeEmail(u.Email)
	return u
}

// WithProfile copies the mutable profile fields except the active flag.
func (u User) WithProfile(p UserProfile) User {
	u.Email = NormalizeEmail(p.Email)
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.Biography = p.Biography
	return u
}

func (u User) ChangeEvent() ChangeEvent {
	return ChangeEvent{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Active:    u.Active,
	}
}

func StringPtr(s string) *string {
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
