package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://minhareceita.org/"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
	sourceName     = "minhareceita"
)

// HTTPClient calls a minhareceita-compatible registry API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

type HTTPOption func(*HTTPClient)

func WithAPIKey(key string) HTTPOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithTimeout bounds every lookup. Zero keeps the default.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

func WithClock(now func() time.Time) HTTPOption {
	return func(c *HTTPClient) { c.now = now }
}

func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Lookup(ctx context.Context, cnpj string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+url.PathEscape(cnpj), nil)
	if err != nil {
		return nil, NewLookupError(ErrorInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewLookupError(ErrorTimeout, "registry lookup timed out", err)
		}
		return nil, NewLookupError(ErrorProviderOutage, "registry unreachable", err)
	}
	defer resp.Body.Close()

	if lerr := classifyStatus(resp.StatusCode); lerr != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, lerr
	}

	var body companyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewLookupError(ErrorTimeout, "registry lookup timed out", err)
		}
		return nil, NewLookupError(ErrorBadData, "decode registry response", err)
	}
	if body.RegistrationStatus == "" {
		return nil, NewLookupError(ErrorBadData, "registry response has no registration status", nil)
	}
	return body.toRecord(c.now()), nil
}

func classifyStatus(code int) *LookupError {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return NewLookupError(ErrorNotFound, "cnpj not found in registry", nil)
	case code == http.StatusTooManyRequests:
		return NewLookupError(ErrorRateLimited, "registry rate limit exceeded", nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewLookupError(ErrorAuthentication, fmt.Sprintf("registry rejected credentials (%d)", code), nil)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return NewLookupError(ErrorTimeout, fmt.Sprintf("registry timed out (%d)", code), nil)
	case code >= 500:
		return NewLookupError(ErrorProviderOutage, fmt.Sprintf("registry unavailable (%d)", code), nil)
	default:
		return NewLookupError(ErrorBadData, fmt.Sprintf("registry rejected request (%d)", code), nil)
	}
}

type companyResponse struct {
	CNPJ               string  `json:"cnpj"`
	LegalName          string  `json:"razao_social"`
	TradeName          string  `json:"nome_fantasia"`
	LegalNature        string  `json:"natureza_juridica"`
	BusinessStartDate  string  `json:"data_inicio_atividade"`
	RegistrationStatus string  `json:"descricao_situacao_cadastral"`
	ShareCapital       float64 `json:"capital_social"`

	AddressType         string `json:"descricao_tipo_de_logradouro"`
	AddressStreetName   string `json:"logradouro"`
	AddressNumber       string `json:"numero"`
	AddressNeighborhood string `json:"bairro"`
	AddressCity         string `json:"municipio"`
	AddressState        string `json:"uf"`
	AddressZip          string `json:"cep"`
}

func (c *companyResponse) toRecord(checkedAt time.Time) *Record {
	return &Record{
		CNPJ:               c.CNPJ,
		RegistrationStatus: translateStatus(c.RegistrationStatus),
		RawStatus:          c.RegistrationStatus,
		LegalName:          c.LegalName,
		TradeName:          c.TradeName,
		LegalNature:        c.LegalNature,
		IncorporationDate:  c.BusinessStartDate,
		Address:            c.address(),
		ShareCapital:       c.ShareCapital,
		Source:             sourceName,
		CheckedAt:          checkedAt,
	}
}

func (c *companyResponse) address() string {
	street := strings.TrimSpace(strings.Join(nonEmpty(c.AddressType, c.AddressStreetName), " "))
	parts := nonEmpty(street, c.AddressNumber, c.AddressNeighborhood, c.AddressCity, c.AddressState, c.AddressZip)
	return strings.Join(parts, ", ")
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func translateStatus(status string) RegistrationStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ATIVA":
		return StatusActive
	case "BAIXADA":
		return StatusClosed
	case "SUSPENSA":
		return StatusSuspended
	case "INAPTA":
		return StatusUnfit
	case "NULA":
		return StatusVoid
	default:
		return StatusUnknown
	}
}
