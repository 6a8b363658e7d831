package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/r2labs/uplink/internal/batch"
	"github.com/r2labs/uplink/internal/broker"
	"github.com/r2labs/uplink/internal/httpx"
	"github.com/r2labs/uplink/internal/progress"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var dest string
	var noUI bool

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files through the broker",
		Long: `Upload one or more files into the destination folder.

Files at or below the multipart threshold go up with a single presigned
PUT; larger files are split into parts and uploaded concurrently. All
transfers in the batch share one concurrency cap.

Examples:
  # Upload into the bucket root
  uplink upload results.csv

  # Upload a mixed batch into a folder
  uplink upload small.txt huge.tar.gz --dest reports/2026

  # Constrain parallelism
  uplink upload *.bin --dest archive --max-concurrent 8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings()
			if err != nil {
				return err
			}

			files, closeAll, err := openFiles(args)
			if err != nil {
				return err
			}
			defer closeAll()

			ops := broker.NewClient(s.BrokerURL, s.AdminToken, logger)
			if err := ops.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("broker at %s is not reachable: %w", s.BrokerURL, err)
			}

			var tracker *progress.Tracker
			var wait func()
			if noUI {
				tracker = progress.NewTracker(nil)
				wait = func() {}
			} else {
				ui := progress.NewBatchUI(len(files))
				tracker = progress.NewTracker(ui.Observe)
				wait = ui.Wait
			}

			coord := batch.New(ops, s, tracker, httpx.NewTransferClient(), logger)
			res, err := coord.Run(cmd.Context(), files, dest)
			wait()
			if err != nil {
				return err
			}

			return reportBatch(cmd, res)
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "destination folder inside the bucket")
	cmd.Flags().BoolVar(&noUI, "no-progress", false, "disable progress bars")

	return cmd
}

// openFiles stats and opens every argument. Directories are rejected;
// globbing is the shell's job.
func openFiles(paths []string) ([]batch.File, func(), error) {
	var files []batch.File
	var handles []*os.File
	closeAll := func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			closeAll()
			return nil, nil, fmt.Errorf("%s is a directory; pass files", p)
		}

		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", p, err)
		}
		handles = append(handles, f)

		files = append(files, batch.File{
			Name:         filepath.Base(p),
			Size:         info.Size(),
			ContentType:  mime.TypeByExtension(filepath.Ext(p)),
			LastModified: info.ModTime(),
			Reader:       f,
		})
	}
	return files, closeAll, nil
}

// reportBatch prints the per-file summary and returns an error when any
// file did not succeed, so the process exits non-zero.
func reportBatch(cmd *cobra.Command, res batch.Result) error {
	failed := 0
	cancelled := 0
	for _, fr := range res.Files {
		switch fr.State {
		case batch.StateSucceeded:
			cmd.Printf("uploaded %s\n", fr.Key)
		case batch.StateCancelled:
			cancelled++
			cmd.Printf("cancelled %s\n", fr.Key)
		case batch.StateFailed:
			failed++
			cmd.Printf("failed %s: %v\n", fr.Key, fr.Err)
		}
	}
	if res.CancelIssued {
		cmd.Println("pending multipart uploads were aborted on the broker")
	}

	if failed > 0 || cancelled > 0 {
		return fmt.Errorf("%d of %d files did not upload", failed+cancelled, len(res.Files))
	}
	cmd.Printf("%d files uploaded\n", len(res.Files))
	return nil
}
