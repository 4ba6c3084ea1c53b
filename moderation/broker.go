package moderation

import (
	"fmt"
	"log/slog"
	"time"

	"parley/contract"
	"parley/domain"
	"parley/domain/event"
	"parley/repositories"

	"github.com/google/uuid"
)

// Broker applies mute/ban/kick actions and keeps the persisted punishment
// state and the live connections consistent. Store writes always complete
// before any live-connection side effect is triggered, so a failed write
// never leaves a half-applied punishment.
type Broker struct {
	log         *slog.Logger
	sessions    repositories.ISessionRepository
	punishments repositories.IPunishmentRepository
	registry    contract.IRegistry
	transport   contract.Transport
	now         func() time.Time
}

func NewBroker(log *slog.Logger, sessions repositories.ISessionRepository,
	punishments repositories.IPunishmentRepository, registry contract.IRegistry,
	transport contract.Transport) *Broker {
	return &Broker{
		log:         log,
		sessions:    sessions,
		punishments: punishments,
		registry:    registry,
		transport:   transport,
		now:         time.Now,
	}
}

// ApplyBan revokes every session of the identity, persists the ban,
// evicts the live connection if there is one, and announces the ban to
// everyone. A nil duration means permanent; timed bans are reaped by the
// punishment sweep.
func (b *Broker) ApplyBan(userID, reason, issuer string, duration *time.Duration) error {
	if err := b.sessions.InvalidateAllForUser(userID); err != nil {
		return fmt.Errorf("revoking sessions of %s: %w", userID, err)
	}

	notice, err := b.persist(userID, domain.Ban, reason, issuer, duration)
	if err != nil {
		return err
	}

	if conn, ok := b.registry.Lookup(userID); ok {
		if err := conn.Send(event.UserBanned, notice); err != nil {
			b.log.Warn("banned user unreachable", "user_id", userID, "error", err)
		}
		_ = conn.Close()
		// Compare-and-unregister: the close above may have raced an
		// eviction replacement, and the entry can already belong to a
		// newer connection that must stay registered.
		if b.registry.UnregisterConn(userID, conn) {
			b.transport.Broadcast(event.ChatUpdateUsers, b.registry.DisplayNames())
		}
	}

	b.transport.Broadcast(event.NotifyUserBanned, notice)
	b.log.Info("ban applied", "user_id", userID, "issuer", issuer, "expires_at", notice.ExpiresAt)
	return nil
}

// ApplyMute persists the mute and notifies the identity if it is online.
// Sessions stay valid and the connection stays open.
func (b *Broker) ApplyMute(userID, reason, issuer string, duration *time.Duration) error {
	notice, err := b.persist(userID, domain.Mute, reason, issuer, duration)
	if err != nil {
		return err
	}

	if conn, ok := b.registry.Lookup(userID); ok {
		if err := conn.Send(event.UserMuted, notice); err != nil {
			b.log.Warn("muted user unreachable", "user_id", userID, "error", err)
		}
	}

	b.transport.Broadcast(event.NotifyUserMuted, notice)
	b.log.Info("mute applied", "user_id", userID, "issuer", issuer, "expires_at", notice.ExpiresAt)
	return nil
}

// Revoke deletes the persisted punishment records of one type and always
// broadcasts the matching un-punishment event, record or no record, so a
// repeated revoke stays observable to clients.
func (b *Broker) Revoke(userID string, t domain.PunishmentType) error {
	if err := b.punishments.DeleteAll(userID, t); err != nil {
		return fmt.Errorf("deleting %s records of %s: %w", t, userID, err)
	}
	b.transport.Broadcast(unpunishedEvent(t), event.Unpunished{UserID: userID})
	return nil
}

// Kick revokes only the one session token handed in by the administrative
// caller, then evicts the live connection if there is one. Kicking an
// identity with no session and no connection is a silent no-op.
func (b *Broker) Kick(userID, sessionToken string) error {
	if sessionToken != "" {
		if err := b.sessions.Invalidate(sessionToken); err != nil {
			return fmt.Errorf("revoking session of %s: %w", userID, err)
		}
	}

	conn, ok := b.registry.Lookup(userID)
	if !ok {
		return nil
	}

	if err := conn.Send(event.UserKicked, struct{}{}); err != nil {
		b.log.Warn("kicked user unreachable", "user_id", userID, "error", err)
	}
	_ = conn.Close()
	// Same compare-and-unregister as bans: never drop an entry that a
	// replacement connection claimed while we were closing the old one.
	if b.registry.UnregisterConn(userID, conn) {
		b.transport.Broadcast(event.ChatUpdateUsers, b.registry.DisplayNames())
	}
	b.log.Info("kick applied", "user_id", userID)
	return nil
}

// persist replaces any active record of the same type with the new one.
// Re-applying a punishment is an explicit replace, not a second record.
func (b *Broker) persist(userID string, t domain.PunishmentType, reason, issuer string,
	duration *time.Duration) (event.PunishmentNotice, error) {
	var expiresAt *time.Time
	if duration != nil {
		exp := b.now().Add(*duration)
		expiresAt = &exp
	}

	if err := b.punishments.DeleteAll(userID, t); err != nil {
		return event.PunishmentNotice{}, fmt.Errorf("replacing %s records of %s: %w", t, userID, err)
	}
	err := b.punishments.Create(domain.Punishment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      t,
		Reason:    reason,
		ExpiresAt: expiresAt,
		Issuer:    issuer,
		CreatedAt: b.now(),
	})
	if err != nil {
		return event.PunishmentNotice{}, fmt.Errorf("persisting %s of %s: %w", t, userID, err)
	}

	return event.PunishmentNotice{UserID: userID, Reason: reason, ExpiresAt: expiresAt}, nil
}

func unpunishedEvent(t domain.PunishmentType) string {
	if t == domain.Ban {
		return event.UserUnbanned
	}
	return event.UserUnmuted
}
