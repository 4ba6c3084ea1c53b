package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MonMotDePasseTr0pSûr!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	// Test de la comparaison négative (mauvais mot de passe)
	match, err = ComparePassword("MauvaisMDP", hash)
	req.NoError(err)
	req.False(match)
}

func TestComparePassword_Rejects_Foreign_Hash_Formats(t *testing.T) {
	req := require.New(t)

	_, err := ComparePassword("pw", "not-a-hash")
	req.Error(err)

	// Wrong algorithm marker
	_, err = ComparePassword("pw", "$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA")
	req.Error(err)

	// Unsupported argon2 version
	_, err = ComparePassword("pw", "$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA")
	req.Error(err)
}

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("user-42", "Alice", []string{"user", "admin"}, time.Hour)
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := ValidateToken(token)
	req.NoError(err)
	req.Equal("user-42", claims.UserID)
	req.Equal("Alice", claims.DisplayName)
	req.Equal([]string{"user", "admin"}, claims.Roles)
}

func TestValidateToken_Rejects_Garbage_And_Expired(t *testing.T) {
	req := require.New(t)

	_, err := ValidateToken("not-a-jwt")
	req.Error(err)

	// A real signature whose expiry has already passed
	expired, err := GenerateToken("user-42", "Alice", []string{"user"}, -time.Minute)
	req.NoError(err)
	_, err = ValidateToken(expired)
	req.Error(err)
}

func TestRegistrationValidation(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"test@example.com", "Tester", "ComplexPass123!"}, false},
		{"Invalid email", RegisterRequest{"notanemail", "Tester", "ComplexPass123!"}, true},
		{"Display name too short", RegisterRequest{"test@example.com", "ab", "ComplexPass123!"}, true},
		{"Password too short", RegisterRequest{"test@example.com", "Tester", "Short1!"}, true},
		{"Missing digit", RegisterRequest{"test@example.com", "Tester", "NoDigitPassword!"}, true},
		{"Missing special char", RegisterRequest{"test@example.com", "Tester", "NoSpecialChar123"}, true},
		{"Missing uppercase", RegisterRequest{"test@example.com", "Tester", "nouppercase1234!"}, true},
		{"Password too long (edge case)", RegisterRequest{"test@example.com", "Tester", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				req.Error(err)
			} else {
				req.NoError(err)
			}
		})
	}
}

// BenchmarkHashPassword permet de mesurer l'impact CPU/RAM (Crucial pour K8s)
func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
