// Package planner decides, per file, whether to upload with a single PUT or
// a multipart upload, and computes the part layout for multipart files.
//
// Planning is pure arithmetic: no I/O, no clock, no configuration lookup.
// The same inputs always produce the same plan.
package planner

import (
	"github.com/r2labs/uplink/internal/uperr"
)

// Method selects how a file is uploaded.
type Method int

const (
	// MethodSingle uploads the whole object with one PUT.
	MethodSingle Method = iota
	// MethodMultipart splits the object into parts uploaded independently
	// and stitched together by a completion call.
	MethodMultipart
)

// String returns "single" or "multipart".
func (m Method) String() string {
	if m == MethodMultipart {
		return "multipart"
	}
	return "single"
}

// PartPlan is one byte range of a multipart upload. Ranges are half-open:
// the part covers [Start, End).
type PartPlan struct {
	PartNumber int32
	Start      int64
	End        int64
}

// Size returns the number of bytes in the part.
func (p PartPlan) Size() int64 {
	return p.End - p.Start
}

// Plan is the upload layout for one file. Parts is nil for MethodSingle.
// For MethodMultipart, Parts exactly tiles [0, Size): 1-based contiguous
// part numbers, every part ChunkSize wide except the last, which may be
// smaller.
type Plan struct {
	Method Method
	Size   int64
	Parts  []PartPlan
}

// PartCount returns the number of parts (0 for single PUT).
func (p Plan) PartCount() int {
	return len(p.Parts)
}

// Config holds the planning inputs. Threaded in explicitly so batches with
// different settings can plan in the same process.
type Config struct {
	// ThresholdBytes: files at or below this size use a single PUT.
	ThresholdBytes int64
	// ChunkSizeBytes is the width of every part except the last.
	ChunkSizeBytes int64
}

// New plans the upload of a file of the given size.
//
// size == 0 always plans a single PUT: a multipart upload with zero parts is
// invalid at the gateway. Negative sizes and non-positive chunk sizes are
// rejected as InvalidInput before any network interaction could happen.
func New(size int64, cfg Config) (Plan, error) {
	if size < 0 {
		return Plan{}, uperr.Newf(uperr.KindInvalidInput, "file size must not be negative, got %d", size)
	}
	if cfg.ChunkSizeBytes <= 0 {
		return Plan{}, uperr.Newf(uperr.KindInvalidInput, "chunk size must be positive, got %d", cfg.ChunkSizeBytes)
	}
	if cfg.ThresholdBytes < 0 {
		return Plan{}, uperr.Newf(uperr.KindInvalidInput, "threshold must not be negative, got %d", cfg.ThresholdBytes)
	}

	if size == 0 || size <= cfg.ThresholdBytes {
		return Plan{Method: MethodSingle, Size: size}, nil
	}

	chunk := cfg.ChunkSizeBytes
	partCount := (size + chunk - 1) / chunk

	parts := make([]PartPlan, 0, partCount)
	for n := int64(1); n <= partCount; n++ {
		start := (n - 1) * chunk
		end := start + chunk
		if end > size {
			end = size // last part may be smaller
		}
		parts = append(parts, PartPlan{
			PartNumber: int32(n),
			Start:      start,
			End:        end,
		})
	}

	return Plan{Method: MethodMultipart, Size: size, Parts: parts}, nil
}
