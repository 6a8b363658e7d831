package progress

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// AggregateBar renders the whole batch as one byte-counting bar. Used
// when per-file bars would be noise, such as very large batches or when
// the caller asked for quiet output.
type AggregateBar struct {
	bar *progressbar.ProgressBar
}

// NewAggregateBar creates a bar sized to the batch's total bytes.
func NewAggregateBar(totalBytes int64, description string) *AggregateBar {
	return &AggregateBar{
		bar: progressbar.NewOptions64(totalBytes,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		),
	}
}

// Observe returns a Tracker onUpdate sink that advances the bar by the
// per-file byte deltas. It keeps its own per-file counters because the
// tracker lock is held while the sink runs.
func (a *AggregateBar) Observe() func(Record) {
	last := map[string]int64{}
	return func(rec Record) {
		if delta := rec.UploadedBytes - last[rec.FileName]; delta > 0 {
			_ = a.bar.Add64(delta)
		}
		last[rec.FileName] = rec.UploadedBytes
	}
}

// Finish completes the bar.
func (a *AggregateBar) Finish() {
	_ = a.bar.Finish()
}
