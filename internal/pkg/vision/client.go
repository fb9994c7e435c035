package vision

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ErrUnreachable is returned when the service could not be reached at all.
var ErrUnreachable = errors.New("vision: classification service unreachable")

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("vision: classification service error (status %d): %s", e.StatusCode, e.Body)
}

// Fields maps each multipart part to the name the service expects.
type Fields struct {
	Models   string
	User     string
	Password string
	File     string
}

// Config holds configuration for the classification client.
type Config struct {
	BaseURL  string // e.g. "https://api.example.com"
	Path     string // e.g. "/1.0/check.json"
	Username string
	Password string
	Timeout  time.Duration
	Fields   Fields

	// InsecureSkipVerify disables certificate validation toward BaseURL.
	// TODO: default this to false once the endpoint's chain is verified in every deployment.
	InsecureSkipVerify bool
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Path:    "/1.0/check.json",
		Timeout: 30 * time.Second,
		Fields: Fields{
			Models:   "models",
			User:     "api_user",
			Password: "api_secret",
			File:     "media",
		},
		InsecureSkipVerify: true,
	}
}

// Response is a raw successful reply from the service.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client uploads images to a remote visual classification service.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new classification client.
func NewClient(config Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify} //nolint:gosec
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// Classify uploads imageData with the comma-joined model list.
func (c *Client) Classify(ctx context.Context, imageData []byte, filename, models string) (*Response, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.config.Fields.File, filename))
	h.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	for _, f := range []struct{ name, value string }{
		{c.config.Fields.User, c.config.Username},
		{c.config.Fields.Password, c.config.Password},
		{c.config.Fields.Models, models},
	} {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return c.doRequest(ctx, body, writer.FormDataContentType())
}

func (c *Client) doRequest(ctx context.Context, body *bytes.Buffer, contentType string) (*Response, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + c.config.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
