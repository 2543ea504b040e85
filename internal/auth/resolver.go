package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrAccountNotFound = errors.New("account not found")

// CredentialVerifier turns a bearer token into a verified credential.
type CredentialVerifier interface {
	Verify(token string) (*Credential, error)
}

// AccountStore returns the live account behind a credential subject.
type AccountStore interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
}

// Resolver builds a Principal from a bearer token, always taking the role from the
// account store so that demotions and deactivations apply to already-issued tokens.
type Resolver struct {
	verifier CredentialVerifier
	accounts AccountStore
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewResolver(verifier CredentialVerifier, accounts AccountStore, timeout time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		verifier: verifier,
		accounts: accounts,
		timeout:  timeout,
		logger:   logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	cred, err := r.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	acct, err := r.accounts.GetAccount(lookupCtx, cred.SubjectID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: account %s no longer exists", ErrUnauthorized, cred.SubjectID)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acct.Active {
		return nil, fmt.Errorf("%w: account %s is deactivated", ErrUnauthorized, acct.ID)
	}

	if acct.Role != cred.IssuedRole {
		r.logger.Info().
			Str("account_id", acct.ID.String()).
			Str("issued_role", string(cred.IssuedRole)).
			Str("live_role", string(acct.Role)).
			Msg("role changed since token issuance, using live role")
	}

	return acct.principal(), nil
}
