package domain

import (
	"encoding/json"
	"time"
)

// CacheEntry is the denormalized user snapshot kept in the cache, keyed by
// username.
type CacheEntry struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
	Biography *string `json:"biography,omitempty"`
	CreatedAt int64   `json:"created_at"`
	Active    bool    `json:"active"`
}

func CacheEntryFromUser(u User) CacheEntry {
	return CacheEntry{
		ID:        string(u.ID),
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Biography: u.Biography,
		CreatedAt: u.CreatedAt.UnixMilli(),
		Active:    u.Active,
	}
}

func (e CacheEntry) ToUser() User {
	return User{
		UserIdentity: UserIdentity{
			ID:        ID(e.ID),
			Username:  e.Username,
			CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
		},
		UserProfile: UserProfile{
			Email:     e.Email,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Biography: e.Biography,
			Active:    e.Active,
		},
	}
}

func (e CacheEntry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalCacheEntry(data []byte) (CacheEntry, error) {
	var e CacheEntry
	err := json.Unmarshal(data, &e)
	return e, err
}
