package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/r2labs/uplink/internal/uperr"
)

// maxErrorBody caps how much of an error response is carried in diagnostics.
const maxErrorBody = 4 * 1024

// Client talks to the uplink-broker daemon over its JSON API.
//
// The upload path (prepare, complete, cancel-all) never retries: retrying a
// failed prepare or complete call can strand or double-commit uploads, and
// the pipeline's contract is that retry is a user decision. The pending
// listing is a read-only GET and keeps transport-level retries.
type Client struct {
	baseURL string
	token   string
	direct  *retryablehttp.Client // RetryMax 0, upload path
	listing *retryablehttp.Client // retries enabled, idempotent GETs
	log     zerolog.Logger
}

// NewClient creates a broker client for the given base URL and admin token.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	direct := retryablehttp.NewClient()
	direct.RetryMax = 0
	direct.Logger = nil

	listing := retryablehttp.NewClient()
	listing.RetryMax = 3
	listing.Logger = nil

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		direct:  direct,
		listing: listing,
		log:     log,
	}
}

// PrepareBatch implements Operations.
func (c *Client) PrepareBatch(ctx context.Context, in PrepareInput) (PrepareOutput, error) {
	var out PrepareOutput
	err := c.call(ctx, c.direct, http.MethodPost, "/api/prepare", in, &out, uperr.KindPreparationFailed)
	if err != nil {
		return PrepareOutput{}, err
	}
	return out, nil
}

// CompleteUpload implements Operations.
func (c *Client) CompleteUpload(ctx context.Context, in CompleteInput) error {
	return c.call(ctx, c.direct, http.MethodPost, "/api/complete", in, nil, uperr.KindCompletionFailed)
}

// CancelAllUploads implements Operations.
func (c *Client) CancelAllUploads(ctx context.Context) (CancelSummary, error) {
	var out CancelSummary
	err := c.call(ctx, c.direct, http.MethodPost, "/api/cancel-all", struct{}{}, &out, uperr.KindUnknown)
	if err != nil {
		return CancelSummary{}, err
	}
	return out, nil
}

// ListPendingUploads implements Operations.
func (c *Client) ListPendingUploads(ctx context.Context) ([]PendingUpload, error) {
	var out struct {
		Uploads []PendingUpload `json:"uploads"`
	}
	err := c.call(ctx, c.listing, http.MethodGet, "/api/uploads", nil, &out, uperr.KindUnknown)
	if err != nil {
		return nil, err
	}
	return out.Uploads, nil
}

// Ping checks broker reachability before a batch starts.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, c.listing, http.MethodGet, "/healthz", nil, nil, uperr.KindUnknown)
}

// call issues one JSON request. Non-2xx responses are mapped to the error
// taxonomy: 403 is always Forbidden, anything else gets failKind (or stays
// unclassified) and carries the response body as the diagnostic.
func (c *Client) call(ctx context.Context, hc *retryablehttp.Client, method, path string, in, out any, failKind uperr.Kind) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return uperr.Wrap(uperr.KindCancelled, path, ctx.Err())
		}
		if failKind != uperr.KindUnknown {
			return uperr.Wrap(failKind, path, err)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("%s: broker returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(diag)))
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			return uperr.New(uperr.KindForbidden, msg)
		}
		if failKind != uperr.KindUnknown {
			return uperr.New(failKind, msg)
		}
		return fmt.Errorf("%s", msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
