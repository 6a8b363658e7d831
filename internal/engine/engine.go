// Package engine drives concurrent part and object transfers against
// presigned URLs under a batch-wide concurrency cap.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/r2labs/uplink/internal/broker"
	"github.com/r2labs/uplink/internal/buffers"
	"github.com/r2labs/uplink/internal/planner"
	"github.com/r2labs/uplink/internal/uperr"
)

// Options carries the shared resources an engine invocation runs with.
// Sem is owned by the batch: all part PUTs and single-object PUTs of one
// batch draw from the same limiter, so the aggregate number of in-flight
// transfers never exceeds the configured cap.
type Options struct {
	// Client issues the PUTs. Required.
	Client *http.Client

	// Sem bounds in-flight transfers across the whole batch. Required.
	Sem *semaphore.Weighted

	// Buffers provides part-sized read buffers. Required for TransferParts.
	Buffers *buffers.Pool

	// OnProgress, if set, is called after each part completes with the
	// cumulative bytes transferred for this file. Calls are serialized and
	// the reported value never decreases.
	OnProgress func(uploadedBytes int64)
}

// TransferParts uploads every part of one file's plan, at most one PUT per
// semaphore permit in flight, and returns the recorded {partNumber, eTag}
// pairs in arrival order.
//
// Failure of any part cancels the remaining dispatches for this file only;
// in-flight siblings are aborted through the shared context and their
// resolution is collected without affecting the returned error. On
// cancellation of ctx the engine stops dispatching and returns a Cancelled
// error so the caller never attempts completion.
//
// There are no retries: a failed part fails the file, and retrying is the
// caller's decision.
func TransferParts(ctx context.Context, src io.ReaderAt, parts []planner.PartPlan, partURLs []string, opts Options) ([]broker.CompletedPart, error) {
	if len(parts) != len(partURLs) {
		return nil, uperr.Newf(uperr.KindInvalidInput,
			"plan has %d parts but %d part URLs were issued", len(parts), len(partURLs))
	}
	if len(parts) == 0 {
		return nil, uperr.New(uperr.KindInvalidInput, "multipart transfer requires at least one part")
	}

	// One cancel scope per file: the first part failure stops further
	// dispatches and aborts this file's in-flight PUTs, without touching
	// sibling files that share the same parent context.
	fileCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed []broker.CompletedPart
		uploaded  int64
		firstErr  error
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for i := range parts {
		// Cooperative cancellation: checked before each new dispatch.
		// Acquire blocks while the batch is at its concurrency cap.
		if err := opts.Sem.Acquire(fileCtx, 1); err != nil {
			break
		}

		part := parts[i]
		url := partURLs[i]

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer opts.Sem.Release(1)

			etag, err := putPart(fileCtx, src, part, url, opts)
			if err != nil {
				fail(err)
				return
			}

			mu.Lock()
			completed = append(completed, broker.CompletedPart{
				PartNumber: part.PartNumber,
				ETag:       etag,
			})
			uploaded += part.Size()
			if opts.OnProgress != nil {
				// Fired under the lock so delivered values never decrease.
				opts.OnProgress(uploaded)
			}
			mu.Unlock()
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, uperr.Wrap(uperr.KindCancelled, "part transfer", err)
	}
	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// putPart uploads one byte range and returns its ETag with surrounding
// quotes stripped.
func putPart(ctx context.Context, src io.ReaderAt, part planner.PartPlan, url string, opts Options) (string, error) {
	buf := opts.Buffers.Get()
	defer opts.Buffers.Put(buf)

	size := part.Size()
	if size > int64(len(*buf)) {
		return "", uperr.Newf(uperr.KindInvalidInput,
			"part %d is %d bytes but the buffer pool holds %d", part.PartNumber, size, len(*buf))
	}

	data := (*buf)[:size]
	if _, err := src.ReadAt(data, part.Start); err != nil {
		return "", uperr.Wrap(uperr.KindPartTransferFailed,
			fmt.Sprintf("read part %d", part.PartNumber), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", uperr.Wrap(uperr.KindPartTransferFailed,
			fmt.Sprintf("build part %d request", part.PartNumber), err)
	}
	req.ContentLength = size

	resp, err := opts.Client.Do(req)
	if err != nil {
		return "", uperr.Wrap(uperr.KindPartTransferFailed,
			fmt.Sprintf("put part %d", part.PartNumber), err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", uperr.Newf(uperr.KindPartTransferFailed,
			"part %d: gateway returned %d", part.PartNumber, resp.StatusCode)
	}

	etag := extractETag(resp)
	if etag == "" {
		// A part without a recorded ETag cannot be referenced at
		// completion time, so the whole file fails.
		return "", uperr.Newf(uperr.KindMissingETag,
			"part %d: gateway returned no ETag", part.PartNumber)
	}
	return etag, nil
}

// PutObject uploads a whole object with one PUT to a presigned URL,
// drawing from the same batch limiter as part transfers. headers are the
// signed headers issued alongside the URL and are sent verbatim.
func PutObject(ctx context.Context, src io.Reader, size int64, url string, headers map[string]string, opts Options) error {
	if err := opts.Sem.Acquire(ctx, 1); err != nil {
		return uperr.Wrap(uperr.KindCancelled, "object put", err)
	}
	defer opts.Sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, src)
	if err != nil {
		return uperr.Wrap(uperr.KindPartTransferFailed, "build object put", err)
	}
	req.ContentLength = size
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return uperr.Wrap(uperr.KindCancelled, "object put", ctx.Err())
		}
		return uperr.Wrap(uperr.KindPartTransferFailed, "object put", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return uperr.Newf(uperr.KindPartTransferFailed, "object put: gateway returned %d", resp.StatusCode)
	}

	if opts.OnProgress != nil {
		opts.OnProgress(size)
	}
	return nil
}

// extractETag returns the response ETag with surrounding quotes stripped.
// Storage gateways return the header quoted (`"abc123"`), but completion
// references parts by the bare value.
func extractETag(resp *http.Response) string {
	return strings.Trim(resp.Header.Get("ETag"), `"`)
}

// drainAndClose releases the connection back to the pool.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4*1024))
	_ = body.Close()
}
