// Package config defines the explicit configuration structs threaded into the
// upload pipeline. The core never reads globals or environment state; cmd/
// binds flags and environment variables into these structs and passes them
// down through constructors.
package config

import (
	"time"

	"github.com/r2labs/uplink/internal/uperr"
)

const (
	// MinChunkSize is the storage-imposed minimum size for every part except
	// the last one (5 MiB for S3-compatible gateways, R2 included).
	MinChunkSize = 5 * 1024 * 1024

	// DefaultChunkSize is the part size used when none is configured.
	// 16 MiB keeps part counts low for multi-GB files while staying well
	// within per-request memory budgets.
	DefaultChunkSize = 16 * 1024 * 1024

	// DefaultMaxConcurrentUploads caps simultaneous part/object PUTs across a
	// whole batch. Unbounded fan-out exhausts connection pools and triggers
	// backend rate limiting.
	DefaultMaxConcurrentUploads = 24
)

// Settings configures the client-side upload pipeline for one batch.
// Multiple batches with different Settings can run in the same process.
type Settings struct {
	// ChunkSizeBytes is the multipart part size. Every part except the last
	// is exactly this size. Must be >= MinChunkSize.
	ChunkSizeBytes int64

	// MultipartThresholdBytes selects the upload method: files at or below
	// the threshold use a single PUT, larger files use multipart.
	// Zero means "same as ChunkSizeBytes".
	MultipartThresholdBytes int64

	// MaxConcurrentUploads is the batch-wide cap on in-flight HTTP transfers
	// (part PUTs and single-object PUTs share one limiter).
	MaxConcurrentUploads int

	// BrokerURL is the base URL of the authorization broker.
	BrokerURL string

	// AdminToken authenticates the caller to the broker as an admin.
	AdminToken string
}

// DefaultSettings returns Settings with defaults applied.
func DefaultSettings() Settings {
	return Settings{
		ChunkSizeBytes:          DefaultChunkSize,
		MultipartThresholdBytes: DefaultChunkSize,
		MaxConcurrentUploads:    DefaultMaxConcurrentUploads,
	}
}

// ApplyDefaults fills zero-valued fields with defaults.
func (s *Settings) ApplyDefaults() {
	if s.ChunkSizeBytes == 0 {
		s.ChunkSizeBytes = DefaultChunkSize
	}
	if s.MultipartThresholdBytes == 0 {
		s.MultipartThresholdBytes = s.ChunkSizeBytes
	}
	if s.MaxConcurrentUploads == 0 {
		s.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
}

// Validate rejects settings that would produce invalid uploads.
func (s *Settings) Validate() error {
	if s.ChunkSizeBytes < MinChunkSize {
		return uperr.Newf(uperr.KindInvalidInput,
			"chunk size %d is below the %d byte minimum for non-final parts",
			s.ChunkSizeBytes, int64(MinChunkSize))
	}
	if s.MultipartThresholdBytes < 0 {
		return uperr.Newf(uperr.KindInvalidInput,
			"multipart threshold must not be negative, got %d", s.MultipartThresholdBytes)
	}
	if s.MaxConcurrentUploads < 1 {
		return uperr.Newf(uperr.KindInvalidInput,
			"max concurrent uploads must be at least 1, got %d", s.MaxConcurrentUploads)
	}
	return nil
}

// BrokerSettings configures the broker daemon (uplink-broker).
type BrokerSettings struct {
	// ListenAddr is the HTTP listen address, e.g. ":8486".
	ListenAddr string

	// Bucket is the destination bucket for all uploads.
	Bucket string

	// EndpointURL is the S3-compatible endpoint
	// (https://<account>.r2.cloudflarestorage.com for R2).
	EndpointURL string

	// Region is the signing region. R2 uses "auto".
	Region string

	// AccessKeyID and SecretAccessKey are the gateway credentials.
	AccessKeyID     string
	SecretAccessKey string

	// AdminToken is the bearer token required on every /api call.
	AdminToken string

	// PresignTTL is the validity window for presigned part/object URLs.
	// Must outlive the longest expected batch transfer.
	PresignTTL time.Duration
}

// DefaultBrokerSettings returns BrokerSettings with defaults applied.
func DefaultBrokerSettings() BrokerSettings {
	return BrokerSettings{
		ListenAddr: ":8486",
		Region:     "auto",
		PresignTTL: time.Hour,
	}
}

// Validate rejects incomplete broker settings.
func (s *BrokerSettings) Validate() error {
	if s.Bucket == "" {
		return uperr.New(uperr.KindInvalidInput, "bucket is required")
	}
	if s.EndpointURL == "" {
		return uperr.New(uperr.KindInvalidInput, "endpoint URL is required")
	}
	if s.AccessKeyID == "" || s.SecretAccessKey == "" {
		return uperr.New(uperr.KindInvalidInput, "gateway credentials are required")
	}
	if s.AdminToken == "" {
		return uperr.New(uperr.KindInvalidInput, "admin token is required")
	}
	if s.PresignTTL <= 0 {
		return uperr.New(uperr.KindInvalidInput, "presign TTL must be positive")
	}
	return nil
}
