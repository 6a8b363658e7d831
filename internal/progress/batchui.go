package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// BatchUI renders one mpb progress bar per file in the batch. On a
// non-terminal stderr it degrades to plain start/finish lines so piped
// output stays readable.
type BatchUI struct {
	progress   *mpb.Progress
	mu         sync.Mutex
	bars       map[string]*mpb.Bar
	last       map[string]int64
	isTerminal bool
	totalFiles int
	started    int
}

// NewBatchUI creates a UI for totalFiles uploads.
func NewBatchUI(totalFiles int) *BatchUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSI(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(200*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &BatchUI{
		progress:   p,
		bars:       map[string]*mpb.Bar{},
		last:       map[string]int64{},
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// Observe is a Tracker onUpdate sink. Wire it via NewTracker(ui.Observe).
func (u *BatchUI) Observe(rec Record) {
	u.mu.Lock()
	defer u.mu.Unlock()

	bar, ok := u.bars[rec.FileName]
	if !ok {
		bar = u.addBar(rec)
		u.bars[rec.FileName] = bar
	}

	if bar != nil {
		delta := rec.UploadedBytes - u.last[rec.FileName]
		if delta > 0 {
			bar.IncrInt64(delta)
		}
	}
	u.last[rec.FileName] = rec.UploadedBytes

	if rec.Done {
		u.finishBar(bar, rec)
	}
}

func (u *BatchUI) addBar(rec Record) *mpb.Bar {
	u.started++
	label := fmt.Sprintf("[%d/%d] %s (%.1f MiB)",
		u.started, u.totalFiles, shortName(rec.FileName),
		float64(rec.TotalBytes)/(1024*1024))

	if !u.isTerminal {
		fmt.Fprintf(os.Stderr, "uploading %s\n", label)
		return nil
	}

	return u.progress.New(rec.TotalBytes,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
}

func (u *BatchUI) finishBar(bar *mpb.Bar, rec Record) {
	var msg string
	switch {
	case rec.Success:
		if bar != nil {
			bar.SetCurrent(rec.TotalBytes)
		}
		msg = fmt.Sprintf("✓ %s (%.1f MiB)\n", shortName(rec.FileName),
			float64(rec.TotalBytes)/(1024*1024))
	case rec.Cancelled:
		if bar != nil {
			bar.Abort(true)
		}
		msg = fmt.Sprintf("− %s cancelled\n", shortName(rec.FileName))
	default:
		if bar != nil {
			bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s: %s\n", shortName(rec.FileName), rec.ErrorMsg)
	}

	if u.isTerminal {
		// Writing through mpb keeps the message above the live bars.
		_, _ = u.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(os.Stderr, msg)
	}
}

// Wait blocks until every bar has rendered its final state.
func (u *BatchUI) Wait() {
	u.progress.Wait()
}

// LogWriter returns a writer that prints above the live bars.
func (u *BatchUI) LogWriter() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// shortName keeps at most the last two path components of a file name.
func shortName(name string) string {
	parts := strings.Split(filepath.ToSlash(name), "/")
	if len(parts) <= 2 {
		return name
	}
	return "…/" + strings.Join(parts[len(parts)-2:], "/")
}
