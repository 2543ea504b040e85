package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
)

type SessionRequest struct {
	AmountMinorUnits int64
	Currency         string
	PayerEmail       string
	Metadata         map[string]any
}

type Session struct {
	ID          string
	RedirectURL string
}

type SessionStatus struct {
	Paid bool
}

// Provider is the external checkout service. CreateSession has side effects at
// the provider and must not be retried; GetSession is a read and may be.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	GetSession(ctx context.Context, id string) (SessionStatus, error)
}

var errUnknownSession = errors.New("unknown session")

// MemoryProvider is an in-process Provider for tests and local runs. Sessions
// start unpaid; MarkPaid flips them.
type MemoryProvider struct {
	mu       sync.Mutex
	sessions map[string]*memorySession

	// failCreate and failGet make the next n calls fail.
	failCreate int
	failGet    int
	getCalls   int
}

type memorySession struct {
	req  SessionRequest
	paid bool
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{sessions: make(map[string]*memorySession)}
}

func (p *MemoryProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failCreate > 0 {
		p.failCreate--
		return Session{}, errors.New("memory provider: create failed")
	}

	id := "sess_" + uuid.NewString()
	p.sessions[id] = &memorySession{req: req}
	return Session{ID: id, RedirectURL: "https://checkout.local/" + id}, nil
}

func (p *MemoryProvider) GetSession(ctx context.Context, id string) (SessionStatus, error) {
	if err := ctx.Err(); err != nil {
		return SessionStatus{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.getCalls++
	if p.failGet > 0 {
		p.failGet--
		return SessionStatus{}, errors.New("memory provider: lookup failed")
	}

	s, ok := p.sessions[id]
	if !ok {
		return SessionStatus{}, fmt.Errorf("%w: %s", errUnknownSession, id)
	}
	return SessionStatus{Paid: s.paid}, nil
}

// MarkPaid simulates the payer completing checkout.
func (p *MemoryProvider) MarkPaid(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownSession, id)
	}
	s.paid = true
	return nil
}

func (p *MemoryProvider) FailNextCreates(n int) {
	p.mu.Lock()
	p.failCreate = n
	p.mu.Unlock()
}

func (p *MemoryProvider) FailNextGets(n int) {
	p.mu.Lock()
	p.failGet = n
	p.mu.Unlock()
}

// GetCalls counts GetSession calls, failed ones included.
func (p *MemoryProvider) GetCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls
}

// NewProvider builds the provider named by cfg.PaymentProvider.
func NewProvider(cfg config.Config) (Provider, error) {
	switch cfg.PaymentProvider {
	case config.ProviderOmise:
		return NewOmiseProvider(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType, cfg.PaymentReturnURL, cfg.ProviderTimeout)
	case config.ProviderMemory:
		return NewMemoryProvider(), nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
}
