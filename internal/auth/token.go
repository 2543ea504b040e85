package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCredential = errors.New("invalid credential")

type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Credential is what a verified token asserts. IssuedRole is advisory only.
type Credential struct {
	SubjectID  uuid.UUID
	IssuedRole Role
	Email      string
	ExpiresAt  time.Time
}

// JWTVerifier signs and verifies HS256 access tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue mints a token for an account.
func (v *JWTVerifier) Issue(subject uuid.UUID, role Role, email string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Role:  string(role),
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify checks signature, algorithm, issuer and expiry.
func (v *JWTVerifier) Verify(tokenStr string) (*Credential, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !t.Valid {
		return nil, ErrInvalidCredential
	}

	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidCredential)
	}

	return &Credential{
		SubjectID:  sub,
		IssuedRole: Role(claims.Role),
		Email:      claims.Email,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
