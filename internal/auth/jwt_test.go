package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateThenParseRoundTrip(test *testing.T) {
	test.Parallel()

	token, generateError := GenerateToken("secret", "user-1", time.Hour)
	if generateError != nil {
		test.Fatalf("GenerateToken: %v", generateError)
	}
	claims, parseError := ParseToken("secret", token)
	if parseError != nil {
		test.Fatalf("ParseToken: %v", parseError)
	}
	if claims.UserID != "user-1" {
		test.Fatalf("unexpected user id %q", claims.UserID)
	}
}

func TestParseRejectsWrongSecret(test *testing.T) {
	test.Parallel()

	token, generateError := GenerateToken("secret", "user-1", time.Hour)
	if generateError != nil {
		test.Fatalf("GenerateToken: %v", generateError)
	}
	if _, parseError := ParseToken("other-secret", token); !errors.Is(parseError, ErrInvalidToken) {
		test.Fatalf("expected ErrInvalidToken, got %v", parseError)
	}
}

func TestParseRejectsExpiredToken(test *testing.T) {
	test.Parallel()

	token, generateError := GenerateToken("secret", "user-1", -time.Minute)
	if generateError != nil {
		test.Fatalf("GenerateToken: %v", generateError)
	}
	if _, parseError := ParseToken("secret", token); !errors.Is(parseError, ErrInvalidToken) {
		test.Fatalf("expected ErrInvalidToken, got %v", parseError)
	}
}

func TestParseRejectsGarbage(test *testing.T) {
	test.Parallel()

	if _, parseError := ParseToken("secret", "not-a-token"); !errors.Is(parseError, ErrInvalidToken) {
		test.Fatalf("expected ErrInvalidToken, got %v", parseError)
	}
}
