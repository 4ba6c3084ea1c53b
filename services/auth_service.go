package services

import (
	"fmt"
	"time"

	"parley/auth"
	"parley/domain"
	"parley/errors"
	"parley/repositories"
)

type IAuthService interface {
	Register(email, displayName, password string) (Token, error)
	Login(email, password, deviceInfo, ipAddress string) (Token, error)
	Logout(token string) error
}

type AuthService struct {
	userRepository    repositories.IUserRepository
	sessionRepository repositories.ISessionRepository
	tokenDuration     time.Duration
}

type Token string

func NewAuthService(users repositories.IUserRepository,
	sessions repositories.ISessionRepository,
	tokenDuration time.Duration) IAuthService {
	return &AuthService{
		userRepository:    users,
		sessionRepository: sessions,
		tokenDuration:     tokenDuration,
	}
}

func (s *AuthService) Register(email, displayName, password string) (Token, error) {
	valReq := auth.RegisterRequest{
		Email:       email,
		DisplayName: displayName,
		Password:    password,
	}

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	userID, err := s.userRepository.CreateUser(email, displayName, hashedPassword)
	if err != nil {
		return "", err // Will propagate ErrUserAlreadyExists if email is taken
	}

	// 4. Issue the initial session
	return s.openSession(userID, displayName, []string{"user"}, "", "")
}

func (s *AuthService) Login(email, password, deviceInfo, ipAddress string) (Token, error) {
	// 1. Retrieve user by email from storage
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	return s.openSession(user.ID, user.DisplayName, user.Roles, deviceInfo, ipAddress)
}

// Logout revokes one session. The credential stays cryptographically
// valid until its expiry, so revocation must live in the store.
func (s *AuthService) Logout(token string) error {
	return s.sessionRepository.Invalidate(token)
}

// openSession issues a signed credential and persists the session record
// that admission checks against. A credential without a matching valid
// record is worthless.
func (s *AuthService) openSession(userID, displayName string, roles []string,
	deviceInfo, ipAddress string) (Token, error) {
	token, err := auth.GenerateToken(userID, displayName, roles, s.tokenDuration)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	err = s.sessionRepository.Create(domain.Session{
		Token:      token,
		UserID:     userID,
		ExpiresAt:  time.Now().Add(s.tokenDuration),
		Valid:      true,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("persisting session: %w", err)
	}

	return Token(token), nil
}
