package domain

import "time"

// Session is the persisted record backing one issued credential.
// The token doubles as the storage key; revocation flips Valid to false
// and keeps the record around for auditing.
type Session struct {
	Token      string
	UserID     string
	ExpiresAt  time.Time
	Valid      bool
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
}

// Usable reports whether the session may still admit a connection.
// A revoked session is unusable even before its expiry time.
func (s Session) Usable(now time.Time) bool {
	return s.Valid && s.ExpiresAt.After(now)
}
