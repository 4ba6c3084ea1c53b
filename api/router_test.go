package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley/auth"
	"parley/domain"
	"parley/moderation"
	"parley/presence"
	"parley/repositories"
	"parley/services"
	"parley/transport"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router      *Router
	sessions    repositories.SessionRepository
	punishments repositories.PunishmentRepository
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	sessions := repositories.NewSessionRepository(db, log)
	punishments := repositories.NewPunishmentRepository(db, log)
	users := repositories.NewUserRepository(db)
	registry := presence.NewRegistry()
	hub := transport.NewHub(log)

	authService := services.NewAuthService(users, sessions, time.Hour)
	broker := moderation.NewBroker(log, sessions, punishments, registry, hub)

	return apiFixture{
		router:      NewRouter(log, authService, sessions, broker, hub),
		sessions:    sessions,
		punishments: punishments,
	}
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(rec, req)
	return rec
}

// issueToken mints a credential backed by a valid persisted session,
// mirroring what login hands out.
func issueToken(t *testing.T, f apiFixture, displayName string, roles []string) string {
	t.Helper()
	token, err := auth.GenerateToken(uuid.NewString(), displayName, roles, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Create(domain.Session{
		Token:     token,
		UserID:    uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
		Valid:     true,
		CreatedAt: time.Now(),
	}))
	return token
}

func adminToken(t *testing.T, f apiFixture) string {
	return issueToken(t, f, "Root", []string{"user", "admin"})
}

func TestRouter_Register_Then_Login(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/register", "", registerRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "Secret123456!",
	})
	req.Equal(http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/login", "", loginRequest{
		Email: "alice@example.com", Password: "Secret123456!",
	})
	req.Equal(http.StatusOK, rec.Code)

	var payload map[string]string
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &payload))
	req.NotEmpty(payload["token"])
}

func TestRouter_Register_Conflict_On_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	body := registerRequest{Email: "dup@example.com", DisplayName: "A", Password: "Secret123456!"}
	req.Equal(http.StatusCreated, f.do(t, http.MethodPost, "/api/register", "", body).Code)
	req.Equal(http.StatusConflict, f.do(t, http.MethodPost, "/api/register", "", body).Code)
}

func TestRouter_Login_Rejects_Bad_Password(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/register", "", registerRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "Secret123456!",
	})

	rec := f.do(t, http.MethodPost, "/api/login", "", loginRequest{
		Email: "alice@example.com", Password: "Nope123456!",
	})
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestRouter_Moderation_Requires_Admin_Role(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	body := punishRequest{UserID: uuid.NewString(), Reason: "spam"}

	// No credential at all
	req.Equal(http.StatusUnauthorized,
		f.do(t, http.MethodPost, "/api/moderation/ban", "", body).Code)

	// A plain user credential with a perfectly good session
	userToken := issueToken(t, f, "Bob", []string{"user"})
	req.Equal(http.StatusForbidden,
		f.do(t, http.MethodPost, "/api/moderation/ban", userToken, body).Code)
}

func TestRouter_Moderation_Rejects_Credential_Without_Session(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	// A well-signed admin credential with no session record behind it
	orphan, err := auth.GenerateToken(uuid.NewString(), "Root", []string{"user", "admin"}, time.Hour)
	req.NoError(err)

	rec := f.do(t, http.MethodPost, "/api/moderation/ban", orphan,
		punishRequest{UserID: uuid.NewString(), Reason: "spam"})
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestRouter_Moderation_Rejects_Revoked_Admin_Session(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	token := adminToken(t, f)
	body := punishRequest{UserID: uuid.NewString(), Reason: "spam"}

	// The credential works while its session is alive
	req.Equal(http.StatusNoContent,
		f.do(t, http.MethodPost, "/api/moderation/ban", token, body).Code)

	// Revoking the session cuts access well before the credential expires
	req.NoError(f.sessions.Invalidate(token))
	req.Equal(http.StatusUnauthorized,
		f.do(t, http.MethodPost, "/api/moderation/ban", token, body).Code)
}

func TestRouter_Admin_Ban_Persists_Punishment(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	target := uuid.NewString()

	rec := f.do(t, http.MethodPost, "/api/moderation/ban", adminToken(t, f), punishRequest{
		UserID: target, Reason: "spam",
	})
	req.Equal(http.StatusNoContent, rec.Code)

	_, found, err := f.punishments.Find(target, domain.Ban, time.Now())
	req.NoError(err)
	req.True(found)
}

func TestRouter_Admin_Revoke_Rejects_Unknown_Type(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/moderation/revoke", adminToken(t, f), revokeRequest{
		UserID: uuid.NewString(), Type: "exile",
	})
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestRouter_Healthz(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	req.Equal(http.StatusOK, rec.Code)
}
