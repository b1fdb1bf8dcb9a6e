// Package mercadopago is a thin client for the Mercado Pago checkout
// preference API. The rest of the system treats it as an opaque gateway:
// amount in, redirect URL out.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/zplayer-tv/checkout-api/internal/domain/payment"
)

// DefaultBaseURL is the production Mercado Pago API endpoint.
const DefaultBaseURL = "https://api.mercadopago.com"

const statementDescriptor = "ZPLAYER"

// Compile-time check ensuring Client satisfies the payment gateway contract.
var _ payment.Gateway = (*Client)(nil)

// Config holds the gateway client configuration.
type Config struct {
	// AccessToken is the Mercado Pago bearer token.
	AccessToken string
	// BaseURL overrides the API endpoint; empty means DefaultBaseURL.
	BaseURL string
	// SiteBaseURL is the storefront origin used to build back URLs.
	SiteBaseURL string
	// HTTPClient overrides the HTTP client; nil means a 10s-timeout default.
	HTTPClient *http.Client
}

// Client creates checkout preferences over HTTPS.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a gateway Client from the given configuration.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: hc}
}

type preferenceItem struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
}

type backURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type paymentMethods struct {
	Installments        int `json:"installments"`
	DefaultInstallments int `json:"default_installments"`
}

type preferenceRequest struct {
	Items               []preferenceItem `json:"items"`
	BackURLs            backURLs         `json:"back_urls"`
	AutoReturn          string           `json:"auto_return"`
	PaymentMethods      paymentMethods   `json:"payment_methods"`
	StatementDescriptor string           `json:"statement_descriptor"`
	ExternalReference   string           `json:"external_reference"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference opens a checkout session for the given amount and returns
// the provider's preference ID and redirect URL.
func (c *Client) CreatePreference(ctx context.Context, p payment.Preference) (*payment.CreatedPreference, error) {
	body := preferenceRequest{
		Items: []preferenceItem{{
			Title:       p.Title,
			Description: p.Description,
			Quantity:    1,
			UnitPrice:   p.UnitPrice.InexactFloat64(),
			CurrencyID:  "BRL",
		}},
		BackURLs: backURLs{
			Success: c.cfg.SiteBaseURL + "/pagamento/sucesso",
			Failure: c.cfg.SiteBaseURL + "/pagamento/falha",
			Pending: c.cfg.SiteBaseURL + "/pagamento/pendente",
		},
		AutoReturn: "approved",
		PaymentMethods: paymentMethods{
			Installments:        p.Installments,
			DefaultInstallments: 1,
		},
		StatementDescriptor: statementDescriptor,
		ExternalReference:   p.ExternalReference,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal preference")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "post preference")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, errors.Errorf("mercadopago: status %d: %s", resp.StatusCode, detail)
	}

	var out preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode preference response")
	}
	if out.ID == "" || out.InitPoint == "" {
		return nil, errors.New("mercadopago: response missing preference id or init point")
	}

	return &payment.CreatedPreference{
		ID:        out.ID,
		InitPoint: out.InitPoint,
	}, nil
}
