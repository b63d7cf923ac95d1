package dto

import "time"

type User struct {
	ID           string    `json:"id,omitempty"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     *string   `json:"lastName"`
	Biography    *string   `json:"biography"`
	CreationDate time.Time `json:"creationDate"`
	Active       bool      `json:"active"`
}

type DisabledUser struct {
	Username string `json:"username"`
}
