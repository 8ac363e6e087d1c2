package registry

import (
	"context"
	"sync"
	"time"
)

// MockClient answers deterministically: every CNPJ is active unless listed in
// Statuses or NotFound. FailFirst makes the first N lookups of a CNPJ raise a
// provider outage, which is how retry exhaustion is exercised locally.
type MockClient struct {
	Latency   time.Duration
	Statuses  map[string]RegistrationStatus
	NotFound  map[string]bool
	FailFirst map[string]int
	Now       func() time.Time

	mu    sync.Mutex
	calls map[string]int
}

func NewMockClient() *MockClient {
	return &MockClient{
		Statuses:  make(map[string]RegistrationStatus),
		NotFound:  make(map[string]bool),
		FailFirst: make(map[string]int),
	}
}

func (c *MockClient) Lookup(ctx context.Context, cnpj string) (*Record, error) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[cnpj]++
	n := c.calls[cnpj]
	failFirst := c.FailFirst[cnpj]
	status, listed := c.Statuses[cnpj]
	notFound := c.NotFound[cnpj]
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, NewLookupError(ErrorTimeout, "registry lookup timed out", ctx.Err())
		}
	}
	if n <= failFirst {
		return nil, NewLookupError(ErrorProviderOutage, "registry unavailable", nil)
	}
	if notFound {
		return nil, NewLookupError(ErrorNotFound, "cnpj not found in registry", nil)
	}
	if !listed {
		status = StatusActive
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return &Record{
		CNPJ:               cnpj,
		RegistrationStatus: status,
		RawStatus:          string(status),
		LegalName:          "Sample Company " + cnpj,
		TradeName:          "Sample",
		LegalNature:        "Sociedade Empresária Limitada",
		IncorporationDate:  "2015-04-01",
		Address:            "Rua Exemplo, 100, Centro, São Paulo, SP",
		ShareCapital:       100000,
		Source:             "mock",
		CheckedAt:          now(),
	}, nil
}

// Calls returns how many lookups were made for cnpj.
func (c *MockClient) Calls(cnpj string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[cnpj]
}
