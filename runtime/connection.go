// Package runtime coordinates live connections: admission, identity
// conflict resolution, inbound event routing and disconnect cleanup.
// It orchestrates the system without containing storage or wire logic.
package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"parley/auth"
	"parley/contract"
	"parley/domain"
	"parley/domain/event"
	"parley/errors"
	"parley/moderation"
	"parley/repositories"

	"github.com/google/uuid"
)

const (
	defaultGracePeriod = 100 * time.Millisecond
	// One initial attempt plus this many evictions before giving up.
	defaultMaxEvictions = 2
)

// ConnectionSupervisor drives every connection through its lifecycle:
// credential validation, session check, presence conflict resolution,
// active event routing, and teardown. All admission failures are silent
// terminations so a probe learns nothing about token validity.
type ConnectionSupervisor struct {
	log          *slog.Logger
	registry     contract.IRegistry
	transport    contract.Transport
	sessions     repositories.ISessionRepository
	punishments  repositories.IPunishmentRepository
	messages     repositories.IMessageRepository
	moderator    *moderation.Moderator
	gracePeriod  time.Duration
	maxEvictions int
	now          func() time.Time

	mu    sync.RWMutex
	bound map[string]domain.Identity // map conn ID -> admitted identity
}

func NewConnectionSupervisor(log *slog.Logger, registry contract.IRegistry,
	transport contract.Transport, sessions repositories.ISessionRepository,
	punishments repositories.IPunishmentRepository, messages repositories.IMessageRepository,
	moderator *moderation.Moderator, gracePeriod time.Duration) *ConnectionSupervisor {
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}
	return &ConnectionSupervisor{
		log:          log,
		registry:     registry,
		transport:    transport,
		sessions:     sessions,
		punishments:  punishments,
		messages:     messages,
		moderator:    moderator,
		gracePeriod:  gracePeriod,
		maxEvictions: defaultMaxEvictions,
		now:          time.Now,
		bound:        make(map[string]domain.Identity),
	}
}

// HandleConnect admits or rejects a new connection. The credential must
// verify as a JWT, its token must map to a persisted session that is
// still valid and unexpired, and the identity must not carry an active
// ban. A presence conflict triggers the eviction protocol.
func (s *ConnectionSupervisor) HandleConnect(ctx context.Context, conn contract.Conn, credential string) {
	// AwaitingCredential: no credential, no state.
	if credential == "" {
		_ = conn.Close()
		return
	}

	// Validating: signature and claims first, then the persisted session.
	claims, err := auth.ValidateToken(credential)
	if err != nil {
		s.log.Debug("credential rejected", "conn_id", conn.ID(),
			"error", errors.ErrCredentialInvalid)
		_ = conn.Close()
		return
	}

	session, err := s.sessions.Find(credential)
	if err != nil || !session.Usable(s.now()) {
		s.log.Debug("session rejected", "conn_id", conn.ID(), "user_id", claims.UserID,
			"error", errors.ErrSessionInvalid)
		_ = conn.Close()
		return
	}

	// A banned identity must not come online, whatever its session says.
	// Store failure here is fail-open: the sessions were already revoked
	// when the ban was applied.
	if ban, active, err := s.punishments.Find(claims.UserID, domain.Ban, s.now()); err != nil {
		s.log.Warn("ban check failed on admission", "user_id", claims.UserID, "error", err)
	} else if active {
		s.log.Info("banned identity refused", "user_id", claims.UserID, "reason", ban.Reason)
		_ = conn.Close()
		return
	}

	// ConflictCheck / ConflictResolution: evict the stale connection and
	// give its disconnect path a grace window to unregister. The eviction
	// race is expected; a residual conflict is retried, not fatal.
	for attempt := 0; ; attempt++ {
		err := s.registry.Register(claims.UserID, claims.DisplayName, conn)
		if err == nil {
			break
		}
		if attempt >= s.maxEvictions {
			s.log.Warn("dropping new connection",
				"user_id", claims.UserID, "conn_id", conn.ID(),
				"error", errors.ErrEvictionExhausted)
			_ = conn.Close()
			return
		}

		if old, ok := s.registry.Lookup(claims.UserID); ok {
			_ = old.Send(event.ForcedLogout, struct{}{})
			_ = old.Close()
		}

		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-time.After(s.gracePeriod):
		}
	}

	// Active.
	s.bind(conn, domain.Identity{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		Roles:       claims.Roles,
	})
	s.log.Info("connection admitted", "user_id", claims.UserID, "conn_id", conn.ID())
}

// HandleEvent routes one inbound frame from an admitted connection.
// Frames from connections that never reached Active are dropped.
func (s *ConnectionSupervisor) HandleEvent(conn contract.Conn, env event.Envelope) {
	identity, ok := s.identityOf(conn)
	if !ok {
		return
	}

	switch env.Event {
	case event.Typing:
		s.transport.BroadcastExcept(conn.ID(), event.Typing, event.TypingNotice{
			UserID:      identity.ID,
			DisplayName: identity.DisplayName,
		})

	case event.JoinGroup:
		if req, ok := decode[event.GroupRequest](s.log, env); ok && req.Group != "" {
			s.transport.Join(req.Group, conn)
		}

	case event.LeaveGroup:
		if req, ok := decode[event.GroupRequest](s.log, env); ok && req.Group != "" {
			s.transport.Leave(req.Group, conn)
		}

	case event.Entered:
		s.transport.Broadcast(event.ChatUpdateUsers, s.registry.DisplayNames())
		s.notifyIfMuted(conn, identity.ID)

	case event.ChatMessage:
		if msg, ok := decode[event.InboundMessage](s.log, env); ok {
			s.relayMessage(conn, identity, msg)
		}

	default:
		s.log.Debug("unknown inbound event", "event", env.Event, "conn_id", conn.ID())
	}
}

// HandleDisconnect runs on transport close from any cause. Compare-and-
// unregister keeps a newer connection's entry intact when an evicted
// connection's teardown arrives late.
func (s *ConnectionSupervisor) HandleDisconnect(conn contract.Conn) {
	identity, ok := s.unbind(conn)
	if !ok {
		return
	}
	if s.registry.UnregisterConn(identity.ID, conn) {
		s.transport.Broadcast(event.ChatUpdateUsers, s.registry.DisplayNames())
		s.log.Info("connection closed", "user_id", identity.ID, "conn_id", conn.ID())
	}
}

// notifyIfMuted delivers a targeted mute notice when an active mute
// exists. A store failure lets the connection proceed without the notice;
// availability wins over enforcement here.
func (s *ConnectionSupervisor) notifyIfMuted(conn contract.Conn, userID string) {
	mute, active, err := s.punishments.Find(userID, domain.Mute, s.now())
	if err != nil {
		s.log.Warn("mute check failed on entry", "user_id", userID, "error", err)
		return
	}
	if !active {
		return
	}
	_ = conn.Send(event.UserMuted, event.PunishmentNotice{
		UserID:    userID,
		Reason:    mute.Reason,
		ExpiresAt: mute.ExpiresAt,
	})
}

// relayMessage runs an inbound chat message through the profanity
// moderator, persists it, and broadcasts the sanitized version. A muted
// sender gets the mute notice back instead of a relay.
func (s *ConnectionSupervisor) relayMessage(conn contract.Conn, identity domain.Identity, msg event.InboundMessage) {
	if msg.Content == "" {
		return
	}

	mute, active, err := s.punishments.Find(identity.ID, domain.Mute, s.now())
	if err != nil {
		s.log.Warn("mute check failed on message", "user_id", identity.ID, "error", err)
	} else if active {
		_ = conn.Send(event.UserMuted, event.PunishmentNotice{
			UserID:    identity.ID,
			Reason:    mute.Reason,
			ExpiresAt: mute.ExpiresAt,
		})
		return
	}

	sanitized, foundWords := s.moderator.Censor(msg.Content)
	if len(foundWords) > 0 {
		s.log.Info("message censored", "user_id", identity.ID, "words", len(foundWords))
	}

	outbound := event.OutboundMessage{
		ID:          uuid.NewString(),
		Room:        msg.Room,
		UserID:      identity.ID,
		DisplayName: identity.DisplayName,
		Content:     sanitized,
		Lang:        moderation.DetectLang(msg.Content),
		At:          s.now().UTC(),
	}

	err = s.messages.StoreMessage(repositories.DiskMessage{
		ID:      uuid.MustParse(outbound.ID),
		Room:    outbound.Room,
		Author:  identity.ID,
		Content: sanitized,
		At:      outbound.At,
	})
	if err != nil {
		s.log.Error("message persistence failed", "user_id", identity.ID, "error", err)
	}

	s.transport.Broadcast(event.ChatMessage, outbound)
}

func (s *ConnectionSupervisor) bind(conn contract.Conn, identity domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound[conn.ID()] = identity
}

func (s *ConnectionSupervisor) identityOf(conn contract.Conn) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.bound[conn.ID()]
	return identity, ok
}

func (s *ConnectionSupervisor) unbind(conn contract.Conn) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.bound[conn.ID()]
	delete(s.bound, conn.ID())
	return identity, ok
}

func decode[T any](log *slog.Logger, env event.Envelope) (T, bool) {
	var payload T
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		log.Debug("malformed payload", "event", env.Event, "error", err)
		return payload, false
	}
	return payload, true
}
