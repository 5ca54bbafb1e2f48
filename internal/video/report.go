package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Report is one progress sample sent to the tracking endpoint.
type Report struct {
	UserID     string      `json:"user_id"`
	ResourceID string      `json:"resource_id"`
	Duration   float64     `json:"duration"`
	State      PlayerState `json:"state"`
	// IFrame marks a viewer-open report, which counts as a view.
	IFrame       bool `json:"iframe"`
	FullyWatched bool `json:"fully_watched"`
}

// Reporter delivers reports. Implementations must honor ctx cancellation.
type Reporter interface {
	Report(ctx context.Context, token string, r Report) error
}

// Credentials identify the signed-in user.
type Credentials struct {
	UserID string
	Token  string
}

// CredentialSource looks up the signed-in user. ok is false when nobody is
// signed in.
type CredentialSource interface {
	Credentials(ctx context.Context) (creds Credentials, ok bool)
}

// CredentialsFunc adapts a function to CredentialSource.
type CredentialsFunc func(ctx context.Context) (Credentials, bool)

func (f CredentialsFunc) Credentials(ctx context.Context) (Credentials, bool) {
	return f(ctx)
}

// HTTPReporter sends reports to PATCH {baseURL}/api/videos/track.
type HTTPReporter struct {
	baseURL string
	client  *http.Client
}

// ReporterOption configures an HTTPReporter.
type ReporterOption func(*HTTPReporter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ReporterOption {
	return func(r *HTTPReporter) {
		r.client = client
	}
}

// NewHTTPReporter creates a reporter for the tracking backend at baseURL.
func NewHTTPReporter(baseURL string, opts ...ReporterOption) *HTTPReporter {
	r := &HTTPReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type trackResponse struct {
	Done   bool    `json:"done"`
	Reason *string `json:"reason"`
}

func (r *HTTPReporter) Report(ctx context.Context, token string, rep Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, r.baseURL+"/api/videos/track", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var tr trackResponse
		if json.Unmarshal(respBody, &tr) == nil && tr.Reason != nil {
			return fmt.Errorf("tracking api error (status %d): %s", resp.StatusCode, *tr.Reason)
		}
		return fmt.Errorf("tracking api error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
