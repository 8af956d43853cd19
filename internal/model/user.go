package model

// User is owned by the external identity service and read-only here. The
// preferred language and country steer per-recipient translation.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Language string `json:"preferredLanguage"`
	Country  string `json:"preferredCountry,omitempty"`
	Region   string `json:"preferredRegion,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Snapshot is the sender shape embedded in delivered messages.
func (u *User) Snapshot() *UserSnapshot {
	return &UserSnapshot{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
	}
}

// UserSnapshot carries the sender fields a client needs to render a message.
type UserSnapshot struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
