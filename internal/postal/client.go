package postal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aozora-farm/api/internal/services"
)

// ErrAddressNotFound indicates the postal code has no registered address.
var ErrAddressNotFound = errors.New("postal: address not found")

// ErrInvalidPostalCode indicates the code is not a 7-digit Japanese postal code.
var ErrInvalidPostalCode = errors.New("postal: invalid postal code")

// Client calls a zipcloud-style postal code lookup API. The service is
// third-party and best-effort: callers must treat any failure as
// "prefill unavailable" and fall back to manual address entry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a postal lookup client with the given endpoint and timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Results []struct {
		Zipcode  string `json:"zipcode"`
		Address1 string `json:"address1"`
		Address2 string `json:"address2"`
		Address3 string `json:"address3"`
	} `json:"results"`
}

// LookupPostalCode resolves a 7-digit code to prefecture/city/town.
func (c *Client) LookupPostalCode(ctx context.Context, code string) (services.PostalAddress, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(code), "-", "")
	if len(normalized) != 7 {
		return services.PostalAddress{}, fmt.Errorf("%w: %q", ErrInvalidPostalCode, strings.TrimSpace(code))
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return services.PostalAddress{}, fmt.Errorf("%w: %q", ErrInvalidPostalCode, strings.TrimSpace(code))
		}
	}

	endpoint := fmt.Sprintf("%s?zipcode=%s", c.baseURL, url.QueryEscape(normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.PostalAddress{}, fmt.Errorf("postal: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.PostalAddress{}, fmt.Errorf("postal: lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return services.PostalAddress{}, fmt.Errorf("postal: lookup returned status %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return services.PostalAddress{}, fmt.Errorf("postal: decode response: %w", err)
	}
	if payload.Status != http.StatusOK {
		return services.PostalAddress{}, fmt.Errorf("postal: service error: %s", strings.TrimSpace(payload.Message))
	}
	if len(payload.Results) == 0 {
		return services.PostalAddress{}, ErrAddressNotFound
	}

	first := payload.Results[0]
	return services.PostalAddress{
		PostalCode: normalized,
		Prefecture: first.Address1,
		City:       first.Address2,
		Town:       first.Address3,
	}, nil
}
