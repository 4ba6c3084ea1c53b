package repositories

import (
	"log/slog"
	"testing"
	"time"

	"parley/domain"
	"parley/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newSession(userID string, expiresAt time.Time) domain.Session {
	return domain.Session{
		Token:      uuid.NewString(),
		UserID:     userID,
		ExpiresAt:  expiresAt,
		Valid:      true,
		DeviceInfo: "cli-test",
		IPAddress:  "127.0.0.1",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSessionRepository_Create_And_Find(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	session := newSession(uuid.NewString(), time.Now().Add(time.Hour))

	// When a session is created
	req.NoError(repository.Create(session))

	// Then it can be found by token and is usable
	found, err := repository.Find(session.Token)
	req.NoError(err)
	req.Equal(session.UserID, found.UserID)
	req.True(found.Usable(time.Now()))
}

func TestSessionRepository_Find_Unknown_Token(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())

	_, err := repository.Find("no-such-token")
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestSessionRepository_Invalidate_Blocks_Unexpired_Token(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	session := newSession(uuid.NewString(), time.Now().Add(time.Hour))
	req.NoError(repository.Create(session))

	// When the session is revoked
	req.NoError(repository.Invalidate(session.Token))

	// Then the record survives but is no longer usable, even though
	// its expiry time is still in the future
	found, err := repository.Find(session.Token)
	req.NoError(err)
	req.False(found.Valid)
	req.False(found.Usable(time.Now()))
}

func TestSessionRepository_Invalidate_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())

	// Revoking a token nobody ever issued completes without error
	req.NoError(repository.Invalidate("no-such-token"))
}

func TestSessionRepository_InvalidateAllForUser(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	userID := uuid.NewString()
	otherID := uuid.NewString()

	first := newSession(userID, time.Now().Add(time.Hour))
	second := newSession(userID, time.Now().Add(time.Hour))
	other := newSession(otherID, time.Now().Add(time.Hour))
	req.NoError(repository.Create(first))
	req.NoError(repository.Create(second))
	req.NoError(repository.Create(other))

	// When every session of the user is revoked
	req.NoError(repository.InvalidateAllForUser(userID))

	// Then both of the user's sessions are invalid
	for _, token := range []string{first.Token, second.Token} {
		found, err := repository.Find(token)
		req.NoError(err)
		req.False(found.Valid)
	}

	// And the other user's session is untouched
	found, err := repository.Find(other.Token)
	req.NoError(err)
	req.True(found.Valid)
}
