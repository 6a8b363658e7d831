package config

import (
	"testing"

	"github.com/r2labs/uplink/internal/uperr"
)

// TestDefaultSettingsValid tests that the defaults pass validation
func TestDefaultSettingsValid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("DefaultSettings() should validate, got: %v", err)
	}
	if s.ChunkSizeBytes != DefaultChunkSize {
		t.Errorf("ChunkSizeBytes = %d, want %d", s.ChunkSizeBytes, int64(DefaultChunkSize))
	}
	if s.MultipartThresholdBytes != DefaultChunkSize {
		t.Errorf("MultipartThresholdBytes = %d, want %d", s.MultipartThresholdBytes, int64(DefaultChunkSize))
	}
}

// TestApplyDefaults tests zero-value filling
func TestApplyDefaults(t *testing.T) {
	var s Settings
	s.ApplyDefaults()
	if s.ChunkSizeBytes != DefaultChunkSize {
		t.Errorf("ChunkSizeBytes = %d, want default", s.ChunkSizeBytes)
	}
	if s.MaxConcurrentUploads != DefaultMaxConcurrentUploads {
		t.Errorf("MaxConcurrentUploads = %d, want default", s.MaxConcurrentUploads)
	}

	// Threshold follows an explicitly configured chunk size
	s = Settings{ChunkSizeBytes: 8 * 1024 * 1024}
	s.ApplyDefaults()
	if s.MultipartThresholdBytes != 8*1024*1024 {
		t.Errorf("MultipartThresholdBytes = %d, want chunk size", s.MultipartThresholdBytes)
	}
}

// TestValidateRejectsSmallChunk tests the storage-imposed 5 MiB floor
func TestValidateRejectsSmallChunk(t *testing.T) {
	s := DefaultSettings()
	s.ChunkSizeBytes = MinChunkSize - 1
	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() should reject chunk size below 5 MiB")
	}
	if !uperr.IsKind(err, uperr.KindInvalidInput) {
		t.Errorf("error kind = %v, want invalid_input", uperr.KindOf(err))
	}
}

// TestValidateRejectsZeroConcurrency tests the concurrency floor
func TestValidateRejectsZeroConcurrency(t *testing.T) {
	s := DefaultSettings()
	s.MaxConcurrentUploads = 0
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject zero concurrency")
	}
}

// TestBrokerSettingsValidate tests required broker fields
func TestBrokerSettingsValidate(t *testing.T) {
	s := DefaultBrokerSettings()
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject settings without bucket/credentials")
	}

	s.Bucket = "files"
	s.EndpointURL = "https://acct.r2.cloudflarestorage.com"
	s.AccessKeyID = "AKID"
	s.SecretAccessKey = "secret"
	s.AdminToken = "token"
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() failed on complete settings: %v", err)
	}
}
