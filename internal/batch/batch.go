// Package batch coordinates a whole upload session: it plans every file,
// asks the broker for authorization in one round trip, fans the transfers
// out under a shared concurrency cap, and settles each multipart upload.
package batch

import (
	"context"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/r2labs/uplink/internal/broker"
	"github.com/r2labs/uplink/internal/buffers"
	"github.com/r2labs/uplink/internal/config"
	"github.com/r2labs/uplink/internal/engine"
	"github.com/r2labs/uplink/internal/planner"
	"github.com/r2labs/uplink/internal/progress"
	"github.com/r2labs/uplink/internal/uperr"
)

// File is one upload candidate. Reader must serve the full Size bytes.
type File struct {
	Name         string
	Size         int64
	ContentType  string
	LastModified time.Time
	Reader       io.ReaderAt
}

// FileState is a file's terminal outcome.
type FileState int

const (
	StateSucceeded FileState = iota
	StateFailed
	StateCancelled
)

func (s FileState) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// FileResult records one file's outcome.
type FileResult struct {
	Key   string
	Name  string
	State FileState
	Err   error
}

// Result summarizes a finished batch.
type Result struct {
	Files []FileResult

	// CancelIssued reports whether a bucket-wide cancel was sent to the
	// broker after the session context was cancelled.
	CancelIssued bool
}

// Succeeded counts files that finished cleanly.
func (r Result) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.State == StateSucceeded {
			n++
		}
	}
	return n
}

// cancelTimeout bounds the best-effort bucket-wide cancel that runs after
// the session context is already dead.
const cancelTimeout = 30 * time.Second

// Coordinator runs upload batches against one broker.
type Coordinator struct {
	ops      broker.Operations
	settings config.Settings
	tracker  *progress.Tracker
	client   *http.Client
	log      zerolog.Logger
}

// New creates a Coordinator. settings must have passed Validate.
func New(ops broker.Operations, settings config.Settings, tracker *progress.Tracker, client *http.Client, log zerolog.Logger) *Coordinator {
	if client == nil {
		client = http.DefaultClient
	}
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Coordinator{
		ops:      ops,
		settings: settings,
		tracker:  tracker,
		client:   client,
		log:      log,
	}
}

// plannedFile pairs a file with its key and transfer plan.
type plannedFile struct {
	file File
	key  string
	plan planner.Plan
}

// Run uploads every file into destFolder. One file's failure never stops
// its siblings; cancellation of ctx stops all files and then issues a
// bucket-wide cancel to the broker. The returned error is non-nil only
// when the batch as a whole could not run (bad input, preparation
// failure); per-file outcomes are always in the Result.
func (c *Coordinator) Run(ctx context.Context, files []File, destFolder string) (Result, error) {
	planned, err := c.planBatch(files, destFolder)
	if err != nil {
		return Result{}, err
	}

	prepared, err := c.prepare(ctx, planned)
	if err != nil {
		return Result{}, err
	}

	sem := semaphore.NewWeighted(int64(c.settings.MaxConcurrentUploads))
	pool := buffers.NewPool(c.settings.ChunkSizeBytes)

	results := make([]FileResult, len(planned))
	var wg sync.WaitGroup
	for i := range planned {
		pf := planned[i]
		c.tracker.Begin(pf.file.Name, pf.file.Size, pf.plan.Method == planner.MethodMultipart)

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.transferOne(ctx, pf, prepared, sem, pool)
		}(i)
	}
	wg.Wait()

	res := Result{Files: results}
	if ctx.Err() != nil {
		res.CancelIssued = c.cancelAll()
	}
	return res, nil
}

// planBatch resolves keys, rejects duplicates before any network call,
// and plans every file.
func (c *Coordinator) planBatch(files []File, destFolder string) ([]plannedFile, error) {
	if len(files) == 0 {
		return nil, uperr.New(uperr.KindInvalidInput, "batch has no files")
	}

	cfg := planner.Config{
		ThresholdBytes: c.settings.MultipartThresholdBytes,
		ChunkSizeBytes: c.settings.ChunkSizeBytes,
	}

	planned := make([]plannedFile, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, f := range files {
		if f.Name == "" {
			return nil, uperr.New(uperr.KindInvalidInput, "file with empty name")
		}
		key := objectKey(destFolder, f.Name)
		if prev, dup := seen[key]; dup {
			return nil, uperr.Newf(uperr.KindDuplicateKey,
				"files %q and %q both map to key %q", prev, f.Name, key)
		}
		seen[key] = f.Name

		plan, err := planner.New(f.Size, cfg)
		if err != nil {
			return nil, err
		}
		planned = append(planned, plannedFile{file: f, key: key, plan: plan})
	}
	return planned, nil
}

// preparedBatch indexes the broker's grants by object key.
type preparedBatch struct {
	singles    map[string]broker.SingleUpload
	multiparts map[string]broker.MultipartUpload
}

// prepare asks the broker for every grant of the batch in one request.
func (c *Coordinator) prepare(ctx context.Context, planned []plannedFile) (preparedBatch, error) {
	var in broker.PrepareInput
	for _, pf := range planned {
		switch pf.plan.Method {
		case planner.MethodSingle:
			in.SmallFiles = append(in.SmallFiles, broker.SmallFile{
				Key:         pf.key,
				ContentType: pf.file.ContentType,
			})
		case planner.MethodMultipart:
			in.LargeFiles = append(in.LargeFiles, broker.LargeFile{
				Key:         pf.key,
				PartCount:   pf.plan.PartCount(),
				ContentType: pf.file.ContentType,
			})
		}
	}

	out, err := c.ops.PrepareBatch(ctx, in)
	if err != nil {
		return preparedBatch{}, err
	}

	pb := preparedBatch{
		singles:    make(map[string]broker.SingleUpload, len(out.SingleUploads)),
		multiparts: make(map[string]broker.MultipartUpload, len(out.MultipartUploads)),
	}
	for _, s := range out.SingleUploads {
		pb.singles[s.Key] = s
	}
	for _, m := range out.MultipartUploads {
		pb.multiparts[m.Key] = m
	}
	return pb, nil
}

// transferOne moves one file and settles its outcome in the tracker.
func (c *Coordinator) transferOne(ctx context.Context, pf plannedFile, pb preparedBatch, sem *semaphore.Weighted, pool *buffers.Pool) FileResult {
	name := pf.file.Name
	opts := engine.Options{
		Client:  c.client,
		Sem:     sem,
		Buffers: pool,
		OnProgress: func(uploaded int64) {
			c.tracker.Update(name, uploaded)
		},
	}

	var err error
	switch pf.plan.Method {
	case planner.MethodSingle:
		err = c.putSingle(ctx, pf, pb, opts)
	case planner.MethodMultipart:
		err = c.putMultipart(ctx, pf, pb, opts)
	}

	switch {
	case err == nil:
		c.tracker.Finish(name)
		c.log.Info().Str("key", pf.key).Int64("bytes", pf.file.Size).Msg("upload finished")
		return FileResult{Key: pf.key, Name: name, State: StateSucceeded}
	case uperr.IsKind(err, uperr.KindCancelled):
		c.tracker.Cancel(name)
		return FileResult{Key: pf.key, Name: name, State: StateCancelled, Err: err}
	default:
		c.tracker.Fail(name, err)
		c.log.Error().Err(err).Str("key", pf.key).Msg("upload failed")
		return FileResult{Key: pf.key, Name: name, State: StateFailed, Err: err}
	}
}

func (c *Coordinator) putSingle(ctx context.Context, pf plannedFile, pb preparedBatch, opts engine.Options) error {
	grant, ok := pb.singles[pf.key]
	if !ok {
		return uperr.Newf(uperr.KindPreparationFailed, "broker issued no grant for %q", pf.key)
	}
	src := io.NewSectionReader(pf.file.Reader, 0, pf.file.Size)
	return engine.PutObject(ctx, src, pf.file.Size, grant.URL, grant.Headers, opts)
}

func (c *Coordinator) putMultipart(ctx context.Context, pf plannedFile, pb preparedBatch, opts engine.Options) error {
	grant, ok := pb.multiparts[pf.key]
	if !ok {
		return uperr.Newf(uperr.KindPreparationFailed, "broker issued no grant for %q", pf.key)
	}

	completed, err := engine.TransferParts(ctx, pf.file.Reader, pf.plan.Parts, grant.PartURLs, opts)
	if err != nil {
		return err
	}

	// Completion requires ascending part numbers; the engine reports
	// parts in arrival order.
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].PartNumber < completed[j].PartNumber
	})

	return c.ops.CompleteUpload(ctx, broker.CompleteInput{
		Key:      pf.key,
		UploadID: grant.UploadID,
		Parts:    completed,
	})
}

// cancelAll tells the broker to abort every outstanding multipart upload.
// Runs on its own context because the session context is already dead.
func (c *Coordinator) cancelAll() bool {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	sum, err := c.ops.CancelAllUploads(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("bucket-wide cancel failed; uploads may be left pending")
		return false
	}
	c.log.Info().Int("aborted", sum.Aborted).Int("total", sum.Total).Msg("pending uploads aborted")
	return true
}

// objectKey joins the destination folder and file name into a clean
// slash-separated key with no leading slash.
func objectKey(destFolder, name string) string {
	key := path.Join(filepath.ToSlash(destFolder), filepath.ToSlash(name))
	return strings.TrimPrefix(key, "/")
}
