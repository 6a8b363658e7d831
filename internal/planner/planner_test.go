package planner

import (
	"testing"

	"github.com/r2labs/uplink/internal/uperr"
)

const mib = 1024 * 1024

// TestPartTiling tests that multipart plans exactly tile [0, size) for a
// range of sizes: disjoint, ordered, contiguous ranges starting at 0 and
// ending at size, with ceil(size/chunk) parts.
func TestPartTiling(t *testing.T) {
	cfg := Config{ThresholdBytes: 5 * mib, ChunkSizeBytes: 5 * mib}

	sizes := []int64{
		5*mib + 1,
		7 * mib,
		10 * mib,
		10*mib - 1,
		10*mib + 1,
		100*mib + 12345,
	}

	for _, size := range sizes {
		plan, err := New(size, cfg)
		if err != nil {
			t.Fatalf("New(%d) failed: %v", size, err)
		}
		if plan.Method != MethodMultipart {
			t.Fatalf("New(%d): method = %v, want multipart", size, plan.Method)
		}

		wantParts := (size + cfg.ChunkSizeBytes - 1) / cfg.ChunkSizeBytes
		if int64(plan.PartCount()) != wantParts {
			t.Errorf("New(%d): %d parts, want %d", size, plan.PartCount(), wantParts)
		}

		var offset int64
		for i, part := range plan.Parts {
			if part.PartNumber != int32(i+1) {
				t.Errorf("New(%d): part %d has number %d, want %d", size, i, part.PartNumber, i+1)
			}
			if part.Start != offset {
				t.Errorf("New(%d): part %d starts at %d, want %d (gap or overlap)", size, i, part.Start, offset)
			}
			if i < len(plan.Parts)-1 && part.Size() != cfg.ChunkSizeBytes {
				t.Errorf("New(%d): non-final part %d has size %d, want %d", size, i, part.Size(), cfg.ChunkSizeBytes)
			}
			if part.Size() <= 0 {
				t.Errorf("New(%d): part %d has non-positive size %d", size, i, part.Size())
			}
			offset = part.End
		}
		if offset != size {
			t.Errorf("New(%d): parts end at %d, want %d", size, offset, size)
		}
	}
}

// TestThresholdBoundary tests that exactly-threshold files stay single PUT
// and threshold+1 switches to multipart.
func TestThresholdBoundary(t *testing.T) {
	cfg := Config{ThresholdBytes: 5 * mib, ChunkSizeBytes: 5 * mib}

	atThreshold, err := New(5*mib, cfg)
	if err != nil {
		t.Fatalf("New(threshold) failed: %v", err)
	}
	if atThreshold.Method != MethodSingle {
		t.Errorf("file of exactly thresholdBytes should be single, got %v", atThreshold.Method)
	}

	overThreshold, err := New(5*mib+1, cfg)
	if err != nil {
		t.Fatalf("New(threshold+1) failed: %v", err)
	}
	if overThreshold.Method != MethodMultipart {
		t.Errorf("file of thresholdBytes+1 should be multipart, got %v", overThreshold.Method)
	}
}

// TestZeroSizeAlwaysSingle tests that empty files never plan multipart, even
// with a zero threshold.
func TestZeroSizeAlwaysSingle(t *testing.T) {
	plan, err := New(0, Config{ThresholdBytes: 0, ChunkSizeBytes: 5 * mib})
	if err != nil {
		t.Fatalf("New(0) failed: %v", err)
	}
	if plan.Method != MethodSingle {
		t.Errorf("zero-size file should be single, got %v", plan.Method)
	}
	if plan.PartCount() != 0 {
		t.Errorf("zero-size file should have no parts, got %d", plan.PartCount())
	}
}

// TestExactMultiple tests a 15 MiB file with 5 MiB chunks: exactly 3 equal parts
func TestExactMultiple(t *testing.T) {
	plan, err := New(15*mib, Config{ThresholdBytes: 5 * mib, ChunkSizeBytes: 5 * mib})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if plan.PartCount() != 3 {
		t.Fatalf("got %d parts, want 3", plan.PartCount())
	}
	for i, part := range plan.Parts {
		if part.Size() != 5*mib {
			t.Errorf("part %d size = %d, want %d", i+1, part.Size(), int64(5*mib))
		}
	}
}

// TestNonMultiple tests a 12 MiB file with 5 MiB chunks: 5 + 5 + 2
func TestNonMultiple(t *testing.T) {
	plan, err := New(12*mib, Config{ThresholdBytes: 5 * mib, ChunkSizeBytes: 5 * mib})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	wantSizes := []int64{5 * mib, 5 * mib, 2 * mib}
	if plan.PartCount() != len(wantSizes) {
		t.Fatalf("got %d parts, want %d", plan.PartCount(), len(wantSizes))
	}
	for i, want := range wantSizes {
		if got := plan.Parts[i].Size(); got != want {
			t.Errorf("part %d size = %d, want %d", i+1, got, want)
		}
	}
}

// TestInvalidInput tests rejection of malformed plan requests
func TestInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		size int64
		cfg  Config
	}{
		{"negative size", -1, Config{ThresholdBytes: mib, ChunkSizeBytes: mib}},
		{"zero chunk", mib, Config{ThresholdBytes: mib, ChunkSizeBytes: 0}},
		{"negative chunk", mib, Config{ThresholdBytes: mib, ChunkSizeBytes: -mib}},
		{"negative threshold", mib, Config{ThresholdBytes: -1, ChunkSizeBytes: mib}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.cfg)
			if err == nil {
				t.Fatal("New() should fail")
			}
			if !uperr.IsKind(err, uperr.KindInvalidInput) {
				t.Errorf("error kind = %v, want invalid_input", uperr.KindOf(err))
			}
		})
	}
}
