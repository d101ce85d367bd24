// Package generation is the HTTP client for the story-generation service.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "https://urdu-story-generator.onrender.com"

// Advisory bounds shown by the composer. They are not enforced before a
// request is sent; the service decides.
const (
	MinMaxLength   = 1
	MaxMaxLength   = 2000
	MinTemperature = 0.1
	MaxTemperature = 2.0

	DefaultMaxLength   = 500
	DefaultTemperature = 0.8
)

type Request struct {
	Prefix      string  `json:"prefix"`
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
}

// Validate lists the parameters that fall outside the advisory bounds.
func (r Request) Validate() []string {
	var warnings []string
	if r.MaxLength < MinMaxLength || r.MaxLength > MaxMaxLength {
		warnings = append(warnings, fmt.Sprintf("max_length %d outside [%d, %d]", r.MaxLength, MinMaxLength, MaxMaxLength))
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		warnings = append(warnings, fmt.Sprintf("temperature %.2f outside [%.1f, %.1f]", r.Temperature, MinTemperature, MaxTemperature))
	}
	return warnings
}

// Response is the decoded /generate payload. A response with Success=false
// is a failure reported by the service, not a transport error.
type Response struct {
	Success bool   `json:"success"`
	Story   string `json:"story,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Err returns a *ServiceError for unsuccessful responses and nil otherwise.
func (r *Response) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &ServiceError{Message: r.Error}
}

// HTTPError is returned for any non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ServiceError carries the message of a response whose success flag was false.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return "Unknown error"
	}
	return e.Message
}

type Health struct {
	Status  string `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`
}

type ModelInfo struct {
	ModelType            string             `json:"model_type" yaml:"model_type"`
	VocabularySize       int                `json:"vocabulary_size" yaml:"vocabulary_size"`
	TotalTokens          int                `json:"total_tokens" yaml:"total_tokens"`
	InterpolationWeights map[string]float64 `json:"interpolation_weights" yaml:"interpolation_weights"`
	IsTrained            bool               `json:"is_trained" yaml:"is_trained"`
}

// Generator is what the submission controller needs from the client.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Generator = &Client{}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Generate issues exactly one POST to /generate. There is no retry.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if warnings := req.Validate(); len(warnings) > 0 {
		log.Debug().Strs("warnings", warnings).Msg("generation: parameters outside advisory bounds")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "generation: encode request")
	}
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/generate", body, &resp); err != nil {
		return nil, err
	}
	log.Debug().
		Bool("success", resp.Success).
		Int("story_len", len(resp.Story)).
		Msg("generation: response received")
	return &resp, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	var mi ModelInfo
	if err := c.do(ctx, http.MethodGet, "/model-info", nil, &mi); err != nil {
		return nil, err
	}
	return &mi, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "generation: build request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "generation: %s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "generation: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "generation: decode %s response", path)
	}
	return nil
}
