package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultBrapiURL     = "https://brapi.dev/api"
	defaultBrapiTimeout = 15 * time.Second
	maxErrorBody        = 512
)

var (
	// ErrSymbolNotFound the provider does not know the requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnavailable the provider failed in a way worth retrying.
	ErrUnavailable = errors.New("quote provider unavailable")
)

// BrapiQuote single result of the brapi quote endpoint.
type BrapiQuote struct {
	Symbol             string          `json:"symbol"`
	ShortName          string          `json:"shortName"`
	LongName           string          `json:"longName"`
	Currency           string          `json:"currency"`
	RegularMarketPrice decimal.Decimal `json:"regularMarketPrice"`
	MarketCap          decimal.Decimal `json:"marketCap"`
	LogoURL            string          `json:"logourl"`
}

type brapiResponse struct {
	Results []BrapiQuote `json:"results"`
	Error   bool         `json:"error"`
	Message string       `json:"message"`
}

// BrapiClient minimal client of the brapi.dev quote API.
type BrapiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewBrapiClient creates a client. An empty baseURL selects the public endpoint.
func NewBrapiClient(baseURL, token string) *BrapiClient {
	if baseURL == "" {
		baseURL = DefaultBrapiURL
	}

	return &BrapiClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultBrapiTimeout,
		},
	}
}

// Quote fetches the latest quote for ticker.
func (c *BrapiClient) Quote(ctx context.Context, ticker string) (BrapiQuote, error) {
	endpoint := fmt.Sprintf("%s/quote/%s", c.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return BrapiQuote{}, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BrapiQuote{}, errors.Wrapf(ErrUnavailable, "HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return BrapiQuote{}, errors.Wrapf(ErrUnavailable, "failed to read response body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return BrapiQuote{}, errors.Wrapf(ErrSymbolNotFound, "brapi %s: status %d", ticker, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return BrapiQuote{}, errors.Wrapf(ErrUnavailable, "brapi returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed brapiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return BrapiQuote{}, errors.Wrap(err, "failed to unmarshal response")
	}
	if parsed.Error || len(parsed.Results) == 0 {
		return BrapiQuote{}, errors.Wrapf(ErrSymbolNotFound, "brapi %s: %s", ticker, parsed.Message)
	}

	return parsed.Results[0], nil
}
