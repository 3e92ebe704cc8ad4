package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.0-flash"
	DefaultTimeout  = 60 * time.Second

	// maxErrorBody caps how much of an error response is kept for diagnostics.
	maxErrorBody = 2048

	apiKeyHeader = "x-goog-api-key"
)

var (
	// ErrEmptyPrompt is returned when Generate is called without a prompt.
	ErrEmptyPrompt = errors.New("gemini: empty prompt")
	// ErrMalformedBody is returned when a successful response is not valid JSON.
	ErrMalformedBody = errors.New("gemini: malformed response body")
)

// UpstreamError reports a non-success HTTP status from the generation endpoint.
type UpstreamError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gemini: upstream error: %s", e.Status)
}

// TransportError reports a failure to reach the generation endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gemini: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the Gemini generateContent endpoint through the genai SDK.
type Client struct {
	models *genai.Models
	logger *slog.Logger
	model  string
}

type settings struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*settings)

// WithEndpoint overrides the API base URL. A trailing version segment such as
// /v1beta selects the API version.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		if endpoint != "" {
			s.endpoint = strings.TrimSuffix(endpoint, "/")
		}
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a Gemini client authenticated with apiKey. The key is
// sent in the key query parameter.
func NewClient(logger *slog.Logger, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := settings{
		endpoint:   DefaultEndpoint,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(&s)
	}

	baseURL, version := splitEndpoint(s.endpoint)
	base := s.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := &http.Client{
		Timeout:   s.httpClient.Timeout,
		Transport: &keyTransport{apiKey: apiKey, base: base},
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: version,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &Client{models: client.Models, logger: logger, model: s.model}, nil
}

// Generate sends prompt as a single user turn and returns the text of the
// first candidate. A response without candidates yields "".
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	rec := &exchange{}
	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	res, err := c.models.GenerateContent(withExchange(ctx, rec), c.model, contents, nil)
	if err != nil {
		return "", c.classify(err, rec)
	}

	c.logger.Debug("Gemini call finished", "model", c.model, "elapsed_ms", time.Since(start).Milliseconds(), "candidates", len(res.Candidates))

	if len(res.Candidates) == 0 {
		return "", nil
	}
	first := res.Candidates[0]
	if first == nil || first.Content == nil || len(first.Content.Parts) == 0 || first.Content.Parts[0] == nil {
		return "", nil
	}
	return first.Content.Parts[0].Text, nil
}

// classify maps an SDK error onto the package's error taxonomy using what the
// transport observed.
func (c *Client) classify(err error, rec *exchange) error {
	switch {
	case rec.transportErr != nil:
		return &TransportError{Err: rec.transportErr}
	case rec.statusCode != 0 && (rec.statusCode < 200 || rec.statusCode > 299):
		c.logger.Warn("Gemini returned an error status", "model", c.model, "status", rec.status)
		return &UpstreamError{StatusCode: rec.statusCode, Status: rec.status, Body: rec.body}
	case rec.statusCode != 0:
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.Code, Status: apiErr.Status, Body: apiErr.Message}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Err: err}
	}
	return fmt.Errorf("gemini: generate failed: %w", err)
}

// splitEndpoint separates a trailing API version segment from endpoint.
func splitEndpoint(endpoint string) (baseURL, version string) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + "/", "v1beta"
	}
	p := strings.TrimSuffix(u.Path, "/")
	i := strings.LastIndex(p, "/")
	last := p[i+1:]
	if len(last) > 1 && last[0] == 'v' && last[1] >= '0' && last[1] <= '9' {
		u.Path = p[:i+1]
		version = last
	} else {
		u.Path = p + "/"
		version = "v1beta"
	}
	return u.String(), version
}

// exchange records what the transport saw during one Generate call.
type exchange struct {
	statusCode   int
	status       string
	body         string
	transportErr error
}

type exchangeKey struct{}

func withExchange(ctx context.Context, rec *exchange) context.Context {
	return context.WithValue(ctx, exchangeKey{}, rec)
}

// keyTransport moves the API key from the SDK header into the key query
// parameter and records the outcome of each round trip.
type keyTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Del(apiKeyHeader)
	q := r.URL.Query()
	q.Set("key", t.apiKey)
	r.URL.RawQuery = q.Encode()

	rec, _ := req.Context().Value(exchangeKey{}).(*exchange)
	resp, err := t.base.RoundTrip(r)
	if err != nil {
		if rec != nil {
			rec.transportErr = err
		}
		return nil, err
	}
	if rec != nil {
		rec.statusCode = resp.StatusCode
		rec.status = resp.Status
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			rec.body = string(snippet)
			resp.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(snippet), resp.Body), resp.Body}
		}
	}
	return resp, nil
}
