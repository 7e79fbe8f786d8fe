// Package anymailfinder is a client for the Anymailfinder company email search.
package anymailfinder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen/internal/resilience"
)

const defaultBaseURL = "https://api.anymailfinder.com/v5.0"

// ErrNoResults is returned when the lookup succeeds but finds no emails.
var ErrNoResults = errors.New("anymailfinder: no emails found for domain")

// Client looks up email addresses for a company domain.
type Client interface {
	FindEmails(ctx context.Context, domain string) ([]string, error)
}

// APIError is returned when Anymailfinder responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anymailfinder: HTTP %d: %s", e.StatusCode, e.Message)
}

// NetworkError is returned when no response was received at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "anymailfinder: no response received: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the request timeout on the default client, keeping its
// transport. Zero or less leaves the default timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Anymailfinder client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			// Company searches can take a while when the domain is not cached upstream.
			Timeout: 180 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type companyRequest struct {
	Domain string `json:"domain"`
}

type companyResponse struct {
	Success bool `json:"success"`
	Results struct {
		Emails []string `json:"emails"`
	} `json:"results"`
}

type errorResponse struct {
	Error          string `json:"error"`
	ErrorExplained string `json:"error_explained"`
}

func (c *httpClient) FindEmails(ctx context.Context, domain string) ([]string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "anymailfinder: rate limit wait")
		}
	}

	body, err := json.Marshal(companyRequest{Domain: domain})
	if err != nil {
		return nil, eris.Wrap(err, "anymailfinder: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/company.json", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "anymailfinder: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	zap.L().Debug("anymailfinder: searching company emails", zap.String("domain", domain))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var out companyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "anymailfinder: decode response")
	}
	if len(out.Results.Emails) == 0 {
		return nil, ErrNoResults
	}
	return out.Results.Emails, nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.ErrorExplained != "" {
			return e.ErrorExplained
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return "an error occurred while fetching emails"
}
