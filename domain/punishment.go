package domain

import "time"

type PunishmentType string

const (
	Mute PunishmentType = "mute"
	Ban  PunishmentType = "ban"
)

// Punishment is a persisted moderation record. A nil ExpiresAt means
// permanent; timed records are reaped by the sweep worker.
type Punishment struct {
	ID        string
	UserID    string
	Type      PunishmentType
	Reason    string
	ExpiresAt *time.Time
	Issuer    string
	CreatedAt time.Time
}

// Active reports whether the punishment is still in force at now.
func (p Punishment) Active(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
