package domain

import "encoding/json"

// ChangeEvent is the outward projection of a user. Email and biography are
// never published.
type ChangeEvent struct {
	Username  string  `json:"username"`
	FirstName string  `json:"firstName"`
	LastName  *string `json:"lastName"`
	Active    bool    `json:"active"`
}

func (e ChangeEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalChangeEvent(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	err := json.Unmarshal(data, &e)
	return e, err
}

// Matches reports whether the live user carries the same published state.
func (e ChangeEvent) Matches(u User) bool {
	return e.Active == u.Active &&
		e.FirstName == u.FirstName &&
		stringValue(e.LastName) == stringValue(u.LastName)
}
