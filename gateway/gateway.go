// Package gateway performs outbound requests to the funcdeck backend,
// applies a per-call timeout, and normalizes transport and HTTP failures
// into a uniform error. It never retries; retry policy belongs to callers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 10 * time.Second

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindTimeout means no response arrived within the call timeout; the
	// in-flight request was aborted.
	KindTimeout ErrorKind = "timeout"

	// KindTransport covers network and decoding failures before an HTTP
	// status was obtained.
	KindTransport ErrorKind = "transport"

	// KindRequestFailed means the backend answered with a non-success
	// HTTP status.
	KindRequestFailed ErrorKind = "request_failed"
)

// Error is the uniform failure shape for backend calls.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == KindTimeout
}

// IsRequestFailed reports whether err is a non-success HTTP response.
func IsRequestFailed(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == KindRequestFailed
}

// Response is a decoded backend response. JSON-typed bodies are kept as raw
// JSON; anything else is returned as text.
type Response struct {
	Status int
	JSON   json.RawMessage
	Text   string
}

// IsJSON reports whether the body was JSON-typed.
func (r Response) IsJSON() bool {
	return r.JSON != nil
}

// Decode unmarshals a JSON response body into v.
func (r Response) Decode(v any) error {
	if !r.IsJSON() {
		return errors.New("gateway: response body is not JSON")
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return fmt.Errorf("gateway: decoding response: %w", err)
	}
	return nil
}

// Config configures a Gateway instance.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8097". Required.
	BaseURL string

	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Client overrides the HTTP client, for tests.
	Client *http.Client

	// Logger receives debug logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Gateway issues request/response calls against the backend.
type Gateway struct {
	base    *url.URL
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// New creates a gateway for the given backend base URL.
func New(cfg Config) (*Gateway, error) {
	clean := strings.TrimSpace(cfg.BaseURL)
	if clean == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	base, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("gateway: parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: base URL %q must be absolute", clean)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{
		base:    base,
		timeout: cfg.Timeout,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}, nil
}

// Call issues one request. A nil body sends no payload; any other body is
// JSON-encoded. Non-2xx statuses and transport failures return *Error.
func (g *Gateway) Call(ctx context.Context, method, path string, body any) (Response, error) {
	rawPath := path
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		rawPath, query = path[:i], path[i+1:]
	}
	target := g.base.JoinPath(rawPath)
	target.RawQuery = query

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("gateway: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target.String(), reader)
	if err != nil {
		return Response{}, fmt.Errorf("gateway: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return Response{}, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("request to %s timed out after %s", path, g.timeout),
			}
		}
		return Response{}, &Error{
			Kind:    KindTransport,
			Message: fmt.Sprintf("request to %s failed: %v", path, err),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &Error{
			Kind:    KindTransport,
			Message: fmt.Sprintf("reading response from %s: %v", path, err),
		}
	}

	g.logger.Debug("backend call",
		"method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	decoded := decodeBody(resp.Header.Get("Content-Type"), raw)
	decoded.Status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &Error{
			Kind:       KindRequestFailed,
			HTTPStatus: resp.StatusCode,
			Message:    failureMessage(decoded),
		}
	}
	return decoded, nil
}

// decodeBody keeps JSON-typed bodies as raw JSON and everything else as text.
// A JSON content type with an unparseable body degrades to text rather than
// being dropped.
func decodeBody(contentType string, raw []byte) Response {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if strings.EqualFold(mediaType, "application/json") && json.Valid(raw) && len(bytes.TrimSpace(raw)) > 0 {
		return Response{JSON: json.RawMessage(raw)}
	}
	return Response{Text: string(raw)}
}

// failureMessage extracts a human-readable message from a failed response:
// a JSON "message" field when present, the serialized JSON body otherwise,
// the raw text when the body was not JSON, and a generic fallback when the
// body was empty.
func failureMessage(resp Response) string {
	if resp.IsJSON() {
		var envelope struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.JSON, &envelope); err == nil && strings.TrimSpace(envelope.Message) != "" {
			return envelope.Message
		}
		return string(resp.JSON)
	}
	if strings.TrimSpace(resp.Text) != "" {
		return resp.Text
	}
	return fmt.Sprintf("request failed with status %d", resp.Status)
}
