// Command uplink-broker runs the authorization broker daemon: it holds
// the bucket credentials and issues presigned URLs to authorized upload
// clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/r2labs/uplink/internal/config"
	"github.com/r2labs/uplink/internal/gateway"
	"github.com/r2labs/uplink/internal/logging"
	"github.com/r2labs/uplink/internal/server"
	"github.com/r2labs/uplink/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newServeCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "uplink-broker: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	s := config.DefaultBrokerSettings()
	var verbose bool

	cmd := &cobra.Command{
		Use:   "uplink-broker",
		Short: "Authorization broker for uplink clients",
		Long: `uplink-broker ` + version.Version + `
Serves the upload authorization API: batch preparation, multipart
completion, pending-upload listing, and bucket-wide cancel. Bucket
credentials never leave this process; clients only see presigned URLs.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnv(&s)
			if err := s.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), s, verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&s.ListenAddr, "listen", s.ListenAddr, "address to serve the API on")
	flags.StringVar(&s.Bucket, "bucket", "", "target bucket name")
	flags.StringVar(&s.EndpointURL, "endpoint", "", "S3-compatible endpoint URL (R2 account endpoint)")
	flags.StringVar(&s.Region, "region", s.Region, "signing region")
	flags.DurationVar(&s.PresignTTL, "presign-ttl", s.PresignTTL, "lifetime of issued presigned URLs")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	return cmd
}

// applyEnv fills the credential-bearing settings from the environment.
// Secrets are env-only so they never show up in process listings.
func applyEnv(s *config.BrokerSettings) {
	if v := os.Getenv("UPLINK_ACCESS_KEY_ID"); v != "" {
		s.AccessKeyID = v
	}
	if v := os.Getenv("UPLINK_SECRET_ACCESS_KEY"); v != "" {
		s.SecretAccessKey = v
	}
	if v := os.Getenv("UPLINK_ADMIN_TOKEN"); v != "" {
		s.AdminToken = v
	}
	if v := os.Getenv("UPLINK_BUCKET"); v != "" && s.Bucket == "" {
		s.Bucket = v
	}
	if v := os.Getenv("UPLINK_ENDPOINT_URL"); v != "" && s.EndpointURL == "" {
		s.EndpointURL = v
	}
}

func run(ctx context.Context, s config.BrokerSettings, verbose bool) error {
	log := logging.NewService(verbose)

	gw, err := gateway.New(ctx, s, log)
	if err != nil {
		return fmt.Errorf("init storage gateway: %w", err)
	}

	srv := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           server.New(gw, s.AdminToken, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.ListenAddr).Str("bucket", s.Bucket).Msg("broker listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
