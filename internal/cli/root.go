// Package cli provides the uplink command-line interface.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/r2labs/uplink/internal/config"
	"github.com/r2labs/uplink/internal/logging"
	"github.com/r2labs/uplink/internal/version"
)

var (
	// Global flags
	brokerURL     string
	adminToken    string
	chunkSizeMiB  int64
	thresholdMiB  int64
	maxConcurrent int
	verbose       bool

	// Global logger, initialized before any command runs.
	logger zerolog.Logger
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uplink",
		Short: "Chunked upload client for R2-backed file storage",
		Long: `uplink ` + version.Version + `
Uploads file batches through an authorization broker: small files with a
single presigned PUT, large files as concurrent multipart uploads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(os.Stderr, verbose)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&brokerURL, "broker-url", envOr("UPLINK_BROKER_URL", "http://localhost:8486"),
		"base URL of the authorization broker")
	flags.StringVar(&adminToken, "token", os.Getenv("UPLINK_ADMIN_TOKEN"),
		"admin bearer token (or UPLINK_ADMIN_TOKEN)")
	flags.Int64Var(&chunkSizeMiB, "chunk-size", config.DefaultChunkSize/(1024*1024),
		"multipart part size in MiB (minimum 5)")
	flags.Int64Var(&thresholdMiB, "threshold", 0,
		"multipart threshold in MiB; 0 means same as chunk size")
	flags.IntVar(&maxConcurrent, "max-concurrent", config.DefaultMaxConcurrentUploads,
		"maximum in-flight part and object transfers per batch")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newPendingCmd())
	rootCmd.AddCommand(newCancelAllCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// settings builds validated client settings from the global flags.
func settings() (config.Settings, error) {
	s := config.Settings{
		ChunkSizeBytes:          chunkSizeMiB * 1024 * 1024,
		MultipartThresholdBytes: thresholdMiB * 1024 * 1024,
		MaxConcurrentUploads:    maxConcurrent,
		BrokerURL:               brokerURL,
		AdminToken:              adminToken,
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the uplink version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("uplink %s\n", version.Version)
		},
	}
}
