package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret-0123456789"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier(testSecret, "clinic")
	sub := uuid.New()

	tok, err := v.Issue(sub, RoleDoctor, "doc@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cred, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cred.SubjectID != sub || cred.IssuedRole != RoleDoctor || cred.Email != "doc@example.com" {
		t.Errorf("unexpected credential %+v", cred)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "clinic")
	sub := uuid.New()

	expired, _ := v.Issue(sub, RoleAdmin, "", -time.Minute)
	otherKey, _ := NewJWTVerifier("another-secret-987654321", "clinic").Issue(sub, RoleAdmin, "", time.Hour)
	otherIssuer, _ := NewJWTVerifier(testSecret, "someone-else").Issue(sub, RoleAdmin, "", time.Hour)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.String(),
			Issuer:    "clinic",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, _ := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "clinic",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	badSubjectTok, _ := badSubject.SignedString([]byte(testSecret))

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"alg none":     unsigned,
		"bad subject":  badSubjectTok,
		"garbage":      "not.a.token",
	}

	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Verify = %v, want ErrInvalidCredential", err)
			}
		})
	}
}
