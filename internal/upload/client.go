package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"sheetsync/internal/core"
)

// DefaultTimeout bounds one upload request.
const DefaultTimeout = 2 * time.Minute

// ErrNoEndpoint is returned when no upload endpoint is configured.
var ErrNoEndpoint = errors.New("sync endpoint is not configured")

// HTTPError is a non-2xx answer from the upload endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// RejectedError is a 2xx answer in which the endpoint refused the rows.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "sync rejected: " + e.Reason
}

type response struct {
	Success    *bool  `json:"success"`
	Message    string `json:"message"`
	RowsSynced *int   `json:"rowsSynced"`
	SyncCount  *int   `json:"syncCount"`
	SyncError  string `json:"syncError"`
	SyncResult *struct {
		SyncCount int    `json:"syncCount"`
		SyncError string `json:"syncError"`
	} `json:"syncResult"`
}

// Client pushes spreadsheet files to the upload endpoint as multipart forms.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// Options configures a Client. RatePerSec <= 0 disables pacing.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	RatePerSec int
	HTTPClient *http.Client
}

// NewClient creates an upload client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{endpoint: opts.Endpoint, http: hc}
	if rps := opts.RatePerSec; rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return c, nil
}

// SyncFile implements core.FileSyncer.
func (c *Client) SyncFile(ctx context.Context, file core.FileDescriptor, target core.SyncTarget) (core.SyncResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return core.SyncResult{}, fmt.Errorf("wait for upload slot: %w", err)
		}
	}

	body, contentType, err := buildForm(file, target)
	if err != nil {
		return core.SyncResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return core.SyncResult{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.SyncResult{}, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.SyncResult{}, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return core.SyncResult{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	return parseResponse(raw)
}

func buildForm(file core.FileDescriptor, target core.SyncTarget) (io.Reader, string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", file.Path, err)
	}
	fields := []struct{ key, value string }{
		{"spreadsheetToken", target.SpreadsheetToken},
		{"sheetId", target.SheetID},
		{"sheetName", target.SheetName},
		{"appId", target.AppID},
		{"appSecret", target.AppSecret},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := w.WriteField(field.key, field.value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", field.key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func parseResponse(raw []byte) (core.SyncResult, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return core.SyncResult{}, nil
	}
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.SyncResult{}, fmt.Errorf("decode upload response: %w", err)
	}
	if resp.SyncError != "" {
		return core.SyncResult{}, &RejectedError{Reason: resp.SyncError}
	}
	if resp.SyncResult != nil && resp.SyncResult.SyncError != "" {
		return core.SyncResult{}, &RejectedError{Reason: resp.SyncResult.SyncError}
	}
	if resp.Success != nil && !*resp.Success {
		reason := resp.Message
		if reason == "" {
			reason = "endpoint reported failure"
		}
		return core.SyncResult{}, &RejectedError{Reason: reason}
	}

	switch {
	case resp.RowsSynced != nil:
		return core.SyncResult{RowsSynced: *resp.RowsSynced}, nil
	case resp.SyncResult != nil:
		return core.SyncResult{RowsSynced: resp.SyncResult.SyncCount}, nil
	case resp.SyncCount != nil:
		return core.SyncResult{RowsSynced: *resp.SyncCount}, nil
	}
	return core.SyncResult{}, nil
}

// Unconfigured is the syncer used when no endpoint is set. Every file fails
// with ErrNoEndpoint so runs are still scanned, filtered and logged.
type Unconfigured struct{}

// SyncFile implements core.FileSyncer.
func (Unconfigured) SyncFile(context.Context, core.FileDescriptor, core.SyncTarget) (core.SyncResult, error) {
	return core.SyncResult{}, ErrNoEndpoint
}

// New returns a Client for opts, or Unconfigured when no endpoint is set.
func New(opts Options) core.FileSyncer {
	c, err := NewClient(opts)
	if err != nil {
		return Unconfigured{}
	}
	return c
}
