package exchange

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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var errRateMissing = errors.New("conversion rate missing in response")

const frankfurterDateLayout = "2006-01-02"

// FrankfurterClient is a client for frankfurter.app exchange rates API.
type FrankfurterClient struct {
	baseURL    string
	httpClient *http.Client
}

type frankfurterResponse struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

// NewFrankfurterClient creates a Frankfurter API client.
func NewFrankfurterClient(baseURL string, timeout time.Duration) *FrankfurterClient {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = "https://api.frankfurter.app"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &FrankfurterClient{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// RateAt returns the published rate for the given day. A zero time asks for
// the latest rate. Frankfurter answers weekend and holiday dates with the
// closest preceding business day, which is reflected in Rate.Date.
func (c *FrankfurterClient) RateAt(ctx context.Context, fromCurrency, toCurrency string, at time.Time) (Rate, error) {
	from := normalizeCode(fromCurrency)
	to := normalizeCode(toCurrency)
	if from == "" || to == "" {
		return Rate{}, errors.New("from and to currencies are required")
	}
	if from == to {
		day := at
		if day.IsZero() {
			day = time.Now()
		}
		return Rate{Value: decimal.NewFromInt(1), Date: day.UTC()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rateURL(from, to, at), nil)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to create rate request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to request rate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Rate{}, fmt.Errorf("exchange API returned status %d", resp.StatusCode)
	}
	return decodeRate(resp.Body, to)
}

// rateURL builds /{day|latest}?from=&to=.
func (c *FrankfurterClient) rateURL(from, to string, at time.Time) string {
	day := "latest"
	if !at.IsZero() {
		day = at.UTC().Format(frankfurterDateLayout)
	}
	query := url.Values{"from": {from}, "to": {to}}
	return c.baseURL + "/" + day + "?" + query.Encode()
}

func decodeRate(body io.Reader, to string) (Rate, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var payload frankfurterResponse
	if err := dec.Decode(&payload); err != nil {
		return Rate{}, fmt.Errorf("failed to decode rate response: %w", err)
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return Rate{}, fmt.Errorf("%w: %s", errRateMissing, to)
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil {
		return Rate{}, fmt.Errorf("failed to parse conversion rate: %w", err)
	}
	if err := validateConversionRate(value); err != nil {
		return Rate{}, err
	}

	published, err := time.Parse(frankfurterDateLayout, payload.Date)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to parse rate date: %w", err)
	}
	return Rate{Value: value, Date: published}, nil
}
