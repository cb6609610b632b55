package models

import (
	"encoding/json"
	"time"
)

const (
	// DefaultUserID identifies the profile created on first start.
	DefaultUserID = "default"
	// DefaultUserName is used when creating the initial profile.
	DefaultUserName = "Primary Profile"
)

// User models a playlog profile owning its game and anime collections.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	PinHash   string    `json:"-"` // bcrypt hash, never serialized to clients
	PhotoURL  string    `json:"photoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPin returns true if the user has a PIN set.
func (u User) HasPin() bool {
	return u.PinHash != ""
}

// MarshalJSON includes the computed hasPin field.
func (u User) MarshalJSON() ([]byte, error) {
	type UserAlias User
	return json.Marshal(&struct {
		UserAlias
		HasPin bool `json:"hasPin"`
	}{
		UserAlias: UserAlias(u),
		HasPin:    u.HasPin(),
	})
}
