package batch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2labs/uplink/internal/broker"
	"github.com/r2labs/uplink/internal/config"
	"github.com/r2labs/uplink/internal/progress"
	"github.com/r2labs/uplink/internal/uperr"
)

const testChunk = 1024

func testSettings() config.Settings {
	return config.Settings{
		ChunkSizeBytes:          testChunk,
		MultipartThresholdBytes: testChunk,
		MaxConcurrentUploads:    4,
	}
}

// fakeOps grants URLs pointing at an httptest server and records what the
// coordinator asked for.
type fakeOps struct {
	mu          sync.Mutex
	baseURL     string
	prepared    []broker.PrepareInput
	completed   []broker.CompleteInput
	cancelCalls int32
}

func (f *fakeOps) PrepareBatch(_ context.Context, in broker.PrepareInput) (broker.PrepareOutput, error) {
	f.mu.Lock()
	f.prepared = append(f.prepared, in)
	f.mu.Unlock()

	var out broker.PrepareOutput
	for _, s := range in.SmallFiles {
		out.SingleUploads = append(out.SingleUploads, broker.SingleUpload{
			Key:     s.Key,
			URL:     f.baseURL + "/put/" + s.Key,
			Headers: map[string]string{"Content-Type": "application/octet-stream"},
		})
	}
	for _, l := range in.LargeFiles {
		mp := broker.MultipartUpload{Key: l.Key, UploadID: "up-" + l.Key}
		for n := 1; n <= l.PartCount; n++ {
			mp.PartURLs = append(mp.PartURLs, fmt.Sprintf("%s/part/%s/%d", f.baseURL, l.Key, n))
		}
		out.MultipartUploads = append(out.MultipartUploads, mp)
	}
	return out, nil
}

func (f *fakeOps) CompleteUpload(_ context.Context, in broker.CompleteInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, in)
	return nil
}

func (f *fakeOps) CancelAllUploads(context.Context) (broker.CancelSummary, error) {
	atomic.AddInt32(&f.cancelCalls, 1)
	return broker.CancelSummary{Aborted: 1, Total: 1}, nil
}

func (f *fakeOps) ListPendingUploads(context.Context) ([]broker.PendingUpload, error) {
	return nil, nil
}

func newCoordinator(ops *fakeOps, tracker *progress.Tracker) *Coordinator {
	return New(ops, testSettings(), tracker, http.DefaultClient, zerolog.Nop())
}

func fileOf(name string, size int) File {
	return File{Name: name, Size: int64(size), Reader: bytes.NewReader(make([]byte, size))}
}

// TestDuplicateKeyRejected tests that colliding keys fail the batch before
// any network interaction
func TestDuplicateKeyRejected(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	ops := &fakeOps{baseURL: srv.URL}
	c := newCoordinator(ops, nil)

	_, err := c.Run(context.Background(), []File{
		fileOf("report.pdf", 10),
		fileOf("report.pdf", 20),
	}, "docs")
	if err == nil {
		t.Fatal("Run() should reject duplicate keys")
	}
	if !uperr.IsKind(err, uperr.KindDuplicateKey) {
		t.Errorf("error kind = %v, want duplicate_key", uperr.KindOf(err))
	}
	if len(ops.prepared) != 0 || atomic.LoadInt32(&requests) != 0 {
		t.Errorf("network was touched before duplicate detection: prepare=%d puts=%d",
			len(ops.prepared), requests)
	}
}

// TestSmallFileSinglePut tests that a file at the threshold goes up with
// one PUT and ends with a full, successful progress record
func TestSmallFileSinglePut(t *testing.T) {
	var puts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/put/") {
			atomic.AddInt32(&puts, 1)
		}
	}))
	defer srv.Close()

	ops := &fakeOps{baseURL: srv.URL}
	tracker := progress.NewTracker(nil)
	c := newCoordinator(ops, tracker)

	res, err := c.Run(context.Background(), []File{fileOf("notes.txt", testChunk)}, "docs")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Succeeded() != 1 {
		t.Fatalf("results = %+v, want one success", res.Files)
	}
	if res.Files[0].Key != "docs/notes.txt" {
		t.Errorf("key = %q, want docs/notes.txt", res.Files[0].Key)
	}
	if got := atomic.LoadInt32(&puts); got != 1 {
		t.Errorf("server saw %d object PUTs, want 1", got)
	}
	if len(ops.prepared) != 1 || len(ops.prepared[0].SmallFiles) != 1 || len(ops.prepared[0].LargeFiles) != 0 {
		t.Errorf("prepare input = %+v, want one small file", ops.prepared)
	}
	if len(ops.completed) != 0 {
		t.Errorf("CompleteUpload called for a single PUT: %+v", ops.completed)
	}

	rec, ok := tracker.Record("notes.txt")
	if !ok {
		t.Fatal("no progress record")
	}
	if rec.UploadedBytes != testChunk || rec.TotalBytes != testChunk || !rec.Success || rec.Multipart {
		t.Errorf("final record = %+v, want {%d, %d, success, single}", rec, testChunk, testChunk)
	}
}

// TestMultipartCompletionSorted tests that completion carries every part
// exactly once in ascending order even when parts finish out of order
func TestMultipartCompletionSorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/part/docs/big.bin/%d", &n)
		// Later part numbers answer first so arrival order is reversed.
		time.Sleep(time.Duration(6-n) * 5 * time.Millisecond)
		w.Header().Set("ETag", fmt.Sprintf(`"etag-%d"`, n))
	}))
	defer srv.Close()

	ops := &fakeOps{baseURL: srv.URL}
	c := newCoordinator(ops, nil)

	res, err := c.Run(context.Background(), []File{fileOf("big.bin", testChunk*5)}, "docs")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Succeeded() != 1 {
		t.Fatalf("results = %+v, want one success", res.Files)
	}

	if len(ops.completed) != 1 {
		t.Fatalf("got %d completions, want 1", len(ops.completed))
	}
	in := ops.completed[0]
	if in.Key != "docs/big.bin" || in.UploadID != "up-docs/big.bin" {
		t.Errorf("completion target = %q/%q", in.Key, in.UploadID)
	}
	if len(in.Parts) != 5 {
		t.Fatalf("got %d parts, want 5", len(in.Parts))
	}
	for i, p := range in.Parts {
		if p.PartNumber != int32(i+1) {
			t.Errorf("parts[%d].PartNumber = %d, want %d (ascending, contiguous)", i, p.PartNumber, i+1)
		}
		if p.ETag != fmt.Sprintf("etag-%d", i+1) {
			t.Errorf("parts[%d].ETag = %q", i, p.ETag)
		}
	}
}

// TestPartFailureSparesSiblings tests that one file's part failure leaves
// the other file's upload untouched
func TestPartFailureSparesSiblings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/part/docs/bad.bin/2") {
			http.Error(w, "rejected", http.StatusForbidden)
			return
		}
		w.Header().Set("ETag", `"e"`)
	}))
	defer srv.Close()

	ops := &fakeOps{baseURL: srv.URL}
	tracker := progress.NewTracker(nil)
	c := newCoordinator(ops, tracker)

	res, err := c.Run(context.Background(), []File{
		fileOf("good.bin", testChunk*3),
		fileOf("bad.bin", testChunk*3),
	}, "docs")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	byName := map[string]FileResult{}
	for _, fr := range res.Files {
		byName[fr.Name] = fr
	}
	if byName["good.bin"].State != StateSucceeded {
		t.Errorf("good.bin state = %v, want succeeded", byName["good.bin"].State)
	}
	if byName["bad.bin"].State != StateFailed {
		t.Errorf("bad.bin state = %v, want failed", byName["bad.bin"].State)
	}

	for _, in := range ops.completed {
		if in.Key == "docs/bad.bin" {
			t.Error("CompleteUpload was called for the failed file")
		}
	}
	if rec, _ := tracker.Record("bad.bin"); rec.Success || !rec.Done {
		t.Errorf("bad.bin record = %+v, want done and unsuccessful", rec)
	}
	if atomic.LoadInt32(&ops.cancelCalls) != 0 {
		t.Error("bucket-wide cancel issued for a plain failure")
	}
}

// TestCancellationStopsBatch tests that cancelling the session context marks
// in-flight files cancelled, stops new PUTs, and triggers the broker's
// bucket-wide cancel
func TestCancellationStopsBatch(t *testing.T) {
	release := make(chan struct{})
	var blocked int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/part/") {
			atomic.AddInt32(&blocked, 1)
			<-release
		}
		w.Header().Set("ETag", `"e"`)
	}))
	defer srv.Close()
	defer close(release)

	ops := &fakeOps{baseURL: srv.URL}
	tracker := progress.NewTracker(nil)
	c := newCoordinator(ops, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		res, err := c.Run(ctx, []File{
			fileOf("quick.txt", 64),
			fileOf("slow.bin", testChunk*8),
		}, "docs")
		if err != nil {
			t.Errorf("Run() failed: %v", err)
		}
		done <- res
	}()

	// Wait for the small file to finish and the large file's parts to be
	// in flight, then pull the plug.
	deadline := time.After(5 * time.Second)
	for {
		rec, ok := tracker.Record("quick.txt")
		if ok && rec.Done && atomic.LoadInt32(&blocked) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("test never reached a cancellable state")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	res := <-done
	byName := map[string]FileResult{}
	for _, fr := range res.Files {
		byName[fr.Name] = fr
	}
	if byName["quick.txt"].State != StateSucceeded {
		t.Errorf("quick.txt state = %v, want succeeded (finished before cancel)", byName["quick.txt"].State)
	}
	if byName["slow.bin"].State != StateCancelled {
		t.Errorf("slow.bin state = %v, want cancelled", byName["slow.bin"].State)
	}
	if !res.CancelIssued || atomic.LoadInt32(&ops.cancelCalls) != 1 {
		t.Errorf("bucket-wide cancel: issued=%v calls=%d, want exactly one", res.CancelIssued, ops.cancelCalls)
	}
	if rec, _ := tracker.Record("slow.bin"); !rec.Cancelled {
		t.Errorf("slow.bin record = %+v, want cancelled", rec)
	}
}

// TestEmptyBatchRejected tests the zero-file edge
func TestEmptyBatchRejected(t *testing.T) {
	c := newCoordinator(&fakeOps{}, nil)
	_, err := c.Run(context.Background(), nil, "docs")
	if !uperr.IsKind(err, uperr.KindInvalidInput) {
		t.Errorf("error kind = %v, want invalid_input", uperr.KindOf(err))
	}
}

// TestObjectKeyJoins tests folder/name joining and slash normalization
func TestObjectKeyJoins(t *testing.T) {
	cases := []struct {
		folder, name, want string
	}{
		{"docs", "a.txt", "docs/a.txt"},
		{"", "a.txt", "a.txt"},
		{"/docs/", "sub/a.txt", "docs/sub/a.txt"},
		{"docs", "./a.txt", "docs/a.txt"},
	}
	for _, tc := range cases {
		if got := objectKey(tc.folder, tc.name); got != tc.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tc.folder, tc.name, got, tc.want)
		}
	}
}
