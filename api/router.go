package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parley/auth"
	"parley/domain"
	"parley/errors"
	"parley/moderation"
	"parley/repositories"
	"parley/services"
	"parley/transport"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// Router bundles the gin engine with the route groups it exposes.
type Router struct {
	Engine *gin.Engine
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo"`
}

type punishRequest struct {
	UserID          string `json:"userId"`
	Reason          string `json:"reason"`
	DurationSeconds *int64 `json:"durationSeconds"` // nil means permanent
}

type revokeRequest struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
}

type kickRequest struct {
	UserID       string `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

func NewRouter(log *slog.Logger, authService services.IAuthService,
	sessions repositories.ISessionRepository, broker *moderation.Broker,
	hub *transport.Hub) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(log))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/ws", hub.ServeWS)

	api := engine.Group("/api")
	api.POST("/register", registerHandler(authService))
	api.POST("/login", loginHandler(authService))
	api.POST("/logout", logoutHandler(authService))

	admin := api.Group("/moderation")
	admin.Use(requireRole(domain.RoleAdmin, sessions))
	admin.POST("/ban", banHandler(broker))
	admin.POST("/mute", muteHandler(broker))
	admin.POST("/kick", kickHandler(broker))
	admin.POST("/revoke", revokeHandler(broker))

	return &Router{Engine: engine}
}

func registerHandler(svc services.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body registerRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		token, err := svc.Register(body.Email, body.DisplayName, body.Password)
		if err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token})
	}
}

func loginHandler(svc services.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body loginRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		token, err := svc.Login(body.Email, body.Password, body.DeviceInfo, c.ClientIP())
		if err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func logoutHandler(svc services.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}
		if err := svc.Logout(token); err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func banHandler(broker *moderation.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, issuer, ok := bindPunish(c)
		if !ok {
			return
		}
		if err := broker.ApplyBan(body.UserID, body.Reason, issuer, punishDuration(body)); err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func muteHandler(broker *moderation.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, issuer, ok := bindPunish(c)
		if !ok {
			return
		}
		if err := broker.ApplyMute(body.UserID, body.Reason, issuer, punishDuration(body)); err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func kickHandler(broker *moderation.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body kickRequest
		if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		if err := broker.Kick(body.UserID, body.SessionToken); err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func revokeHandler(broker *moderation.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body revokeRequest
		if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		t := domain.PunishmentType(body.Type)
		if t != domain.Mute && t != domain.Ban {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown punishment type"})
			return
		}
		if err := broker.Revoke(body.UserID, t); err != nil {
			c.JSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func bindPunish(c *gin.Context) (punishRequest, string, bool) {
	var body punishRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return punishRequest{}, "", false
	}
	issuer := c.GetString(claimsUserIDKey)
	return body, issuer, true
}

func punishDuration(body punishRequest) *time.Duration {
	if body.DurationSeconds == nil {
		return nil
	}
	return lo.ToPtr(time.Duration(*body.DurationSeconds) * time.Second)
}

const claimsUserIDKey = "claims_user_id"

// requireRole authenticates the bearer credential and gates the route on
// one of its roles. A signature check alone is not enough: the persisted
// session must still be valid, so a kicked or logged-out admin loses the
// route immediately instead of at credential expiry. The admitted user ID
// is stashed on the context so handlers can attribute moderation actions
// to their issuer.
func requireRole(role string, sessions repositories.ISessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}
		claims, err := auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		session, err := sessions.Find(token)
		if err != nil || !session.Usable(time.Now()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		if !lo.Contains(claims.Roles, role) {
			err := errors.ErrForbidden
			c.AbortWithStatusJSON(errors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Set(claimsUserIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return ""
}

func loggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
