package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// OmiseProvider maps a checkout session onto an Omise charge: the charge id is
// the session id and its authorize URI is where the payer is sent.
type OmiseProvider struct {
	client     *omise.Client
	sourceType string
	returnURI  string
}

// omiseAPI is the SDK's endpoint key for the charges and sources API.
const omiseAPI = "https://api.omise.co"

// NewOmiseProvider bounds every HTTP request by timeout, so a call the caller
// has given up on cannot still land at Omise afterwards.
func NewOmiseProvider(publicKey, secretKey, sourceType, returnURI string, timeout time.Duration) (*OmiseProvider, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	if timeout > 0 {
		c.Client.Timeout = timeout
	}

	return &OmiseProvider{
		client:     c,
		sourceType: sourceType,
		returnURI:  returnURI,
	}, nil
}

func (p *OmiseProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	currency := strings.ToLower(req.Currency)

	src := &omise.Source{}
	err := p.do(ctx, func() error {
		return p.client.Do(src, &operations.CreateSource{
			Type:     p.sourceType,
			Amount:   req.AmountMinorUnits,
			Currency: currency,
		})
	})
	if err != nil {
		return Session{}, fmt.Errorf("create source: %w", err)
	}

	ch := &omise.Charge{}
	err = p.do(ctx, func() error {
		return p.client.Do(ch, &operations.CreateCharge{
			Amount:    req.AmountMinorUnits,
			Currency:  currency,
			Source:    src.ID,
			ReturnURI: p.returnURI,
			Metadata:  req.Metadata,
		})
	})
	if err != nil {
		return Session{}, fmt.Errorf("create charge: %w", err)
	}

	return Session{ID: ch.ID, RedirectURL: ch.AuthorizeURI}, nil
}

func (p *OmiseProvider) GetSession(ctx context.Context, id string) (SessionStatus, error) {
	ch := &omise.Charge{}
	err := p.do(ctx, func() error {
		return p.client.Do(ch, &operations.RetrieveCharge{ChargeID: id})
	})
	if err != nil {
		return SessionStatus{}, fmt.Errorf("retrieve charge %s: %w", id, err)
	}
	// pending, failed and reversed all count as unpaid
	return SessionStatus{Paid: ch.Status == omise.ChargeSuccessful}, nil
}

// do runs a blocking SDK call so that ctx bounds how long the caller waits. The
// request itself is bounded by the client timeout.
func (p *OmiseProvider) do(ctx context.Context, call func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- call()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
