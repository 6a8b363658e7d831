// Package broker defines the authorization broker contract consumed by the
// upload coordinator, and an HTTP client for the uplink-broker daemon.
//
// The broker is the only component with gateway credentials. It hands out
// one authorization artifact per upload operation: a presigned PUT URL for
// single files, and an uploadId plus one presigned URL per part for
// multipart files. Every call is admin-gated.
package broker

import (
	"context"
	"time"
)

// SmallFile describes one single-PUT upload to authorize.
type SmallFile struct {
	Key         string            `json:"key"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LargeFile describes one multipart upload to authorize. PartCount presigned
// URLs are issued, one per part number 1..PartCount.
type LargeFile struct {
	Key         string            `json:"key"`
	PartCount   int               `json:"partCount"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PrepareInput requests authorization for a whole batch in one round trip.
type PrepareInput struct {
	SmallFiles []SmallFile `json:"smallFiles"`
	LargeFiles []LargeFile `json:"largeFiles"`
}

// SingleUpload authorizes one single PUT. Headers, when present, must be
// sent verbatim on the PUT (they are covered by the URL signature).
type SingleUpload struct {
	Key     string            `json:"key"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MultipartUpload authorizes one multipart upload. PartURLs is in
// part-number order: index 0 is part 1.
type MultipartUpload struct {
	Key      string   `json:"key"`
	UploadID string   `json:"uploadId"`
	PartURLs []string `json:"partUrls"`
}

// PrepareOutput carries the authorization artifacts for a batch.
type PrepareOutput struct {
	SingleUploads    []SingleUpload    `json:"singleUploads"`
	MultipartUploads []MultipartUpload `json:"multiPartUploads"`
}

// CompletedPart references one stored part at completion time. The ETag is
// the gateway's acknowledgement of the part bytes, quotes stripped.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// CompleteInput commits a multipart upload. Parts must cover every part
// number 1..partCount exactly once; the broker sorts them ascending before
// the gateway call.
type CompleteInput struct {
	Key      string          `json:"key"`
	UploadID string          `json:"uploadId"`
	Parts    []CompletedPart `json:"parts"`
}

// CancelSummary reports a best-effort cancel-all: Total uploads found,
// Aborted successfully aborted. Individual abort failures are tolerated.
type CancelSummary struct {
	Aborted int `json:"aborted"`
	Total   int `json:"total"`
}

// PendingUpload is one outstanding (stranded or in-flight) multipart upload.
type PendingUpload struct {
	Key       string    `json:"key"`
	UploadID  string    `json:"uploadId"`
	Initiated time.Time `json:"initiated"`
}

// Operations is the broker surface the coordinator depends on. The HTTP
// Client implements it; tests substitute fakes.
type Operations interface {
	// PrepareBatch authorizes every upload in a batch with one call.
	PrepareBatch(ctx context.Context, in PrepareInput) (PrepareOutput, error)

	// CompleteUpload commits a multipart upload from its recorded parts.
	CompleteUpload(ctx context.Context, in CompleteInput) error

	// CancelAllUploads aborts all outstanding multipart uploads in the
	// bucket. The broker keeps no batch-to-upload mapping, so the scope
	// is every outstanding upload, not just the caller's.
	CancelAllUploads(ctx context.Context) (CancelSummary, error)

	// ListPendingUploads enumerates outstanding multipart uploads.
	ListPendingUploads(ctx context.Context) ([]PendingUpload, error)
}
