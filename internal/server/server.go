// Package server exposes the authorization broker over HTTP: batch
// preparation, completion, pending-upload listing, and bucket-wide
// cancel-all, all gated behind an admin bearer token.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/r2labs/uplink/internal/broker"
)

// Store is the storage gateway surface the server needs. Implemented by
// gateway.Gateway; tests substitute fakes.
type Store interface {
	PresignPutObject(ctx context.Context, key, contentType string, metadata map[string]string) (url string, headers map[string]string, err error)
	CreateMultipart(ctx context.Context, key, contentType string, metadata map[string]string) (uploadID string, err error)
	PresignPart(ctx context.Context, key, uploadID string, partNumber int32) (url string, err error)
	Complete(ctx context.Context, key, uploadID string, parts []broker.CompletedPart) error
	Abort(ctx context.Context, key, uploadID string) error
	ListMultipart(ctx context.Context) ([]broker.PendingUpload, error)
}

// Server handles the broker API.
type Server struct {
	store Store
	token string
	log   zerolog.Logger
}

// New creates a Server. adminToken must be non-empty; an empty token would
// leave the bucket writable by anyone who can reach the daemon.
func New(store Store, adminToken string, log zerolog.Logger) *Server {
	return &Server{store: store, token: adminToken, log: log}
}

// Router builds the HTTP routes. The health probe is unauthenticated;
// everything under /api requires the admin token and is rejected before any
// gateway interaction otherwise.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requestID)
		r.Use(s.requestLog)
		r.Use(s.requireAdmin)
		r.Post("/prepare", s.handlePrepare)
		r.Post("/complete", s.handleComplete)
		r.Post("/cancel-all", s.handleCancelAll)
		r.Get("/uploads", s.handleListUploads)
	})

	return r
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var in broker.PrepareInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid prepare request: "+err.Error())
		return
	}

	out := broker.PrepareOutput{
		SingleUploads:    []broker.SingleUpload{},
		MultipartUploads: []broker.MultipartUpload{},
	}

	for _, f := range in.SmallFiles {
		if f.Key == "" {
			writeError(w, http.StatusBadRequest, "small file with empty key")
			return
		}
		url, headers, err := s.store.PresignPutObject(r.Context(), f.Key, f.ContentType, f.Metadata)
		if err != nil {
			s.log.Error().Err(err).Str("key", f.Key).Msg("presign put failed")
			writeError(w, http.StatusBadGateway, "presign put for "+f.Key+": "+err.Error())
			return
		}
		out.SingleUploads = append(out.SingleUploads, broker.SingleUpload{
			Key: f.Key, URL: url, Headers: headers,
		})
	}

	for _, f := range in.LargeFiles {
		if f.Key == "" || f.PartCount < 1 {
			writeError(w, http.StatusBadRequest, "large file needs a key and at least one part")
			return
		}
		mp, err := s.prepareMultipart(r.Context(), f)
		if err != nil {
			s.log.Error().Err(err).Str("key", f.Key).Msg("prepare multipart failed")
			writeError(w, http.StatusBadGateway, "prepare multipart for "+f.Key+": "+err.Error())
			return
		}
		out.MultipartUploads = append(out.MultipartUploads, mp)
	}

	writeJSON(w, http.StatusOK, out)
}

// prepareMultipart initiates one upload and presigns one URL per part, in
// part-number order (index 0 = part 1). A presign failure aborts the
// just-created upload so preparation failures never strand backend state.
func (s *Server) prepareMultipart(ctx context.Context, f broker.LargeFile) (broker.MultipartUpload, error) {
	uploadID, err := s.store.CreateMultipart(ctx, f.Key, f.ContentType, f.Metadata)
	if err != nil {
		return broker.MultipartUpload{}, err
	}

	partURLs := make([]string, 0, f.PartCount)
	for n := 1; n <= f.PartCount; n++ {
		url, err := s.store.PresignPart(ctx, f.Key, uploadID, int32(n))
		if err != nil {
			if abortErr := s.store.Abort(ctx, f.Key, uploadID); abortErr != nil {
				s.log.Warn().Err(abortErr).Str("key", f.Key).Str("upload_id", uploadID).
					Msg("abort after presign failure also failed; upload left stranded")
			}
			return broker.MultipartUpload{}, err
		}
		partURLs = append(partURLs, url)
	}

	return broker.MultipartUpload{Key: f.Key, UploadID: uploadID, PartURLs: partURLs}, nil
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var in broker.CompleteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid complete request: "+err.Error())
		return
	}
	if in.Key == "" || in.UploadID == "" || len(in.Parts) == 0 {
		writeError(w, http.StatusBadRequest, "complete requires key, uploadId and parts")
		return
	}

	if err := s.store.Complete(r.Context(), in.Key, in.UploadID, in.Parts); err != nil {
		s.log.Error().Err(err).Str("key", in.Key).Str("upload_id", in.UploadID).Msg("complete failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.log.Info().Str("key", in.Key).Int("parts", len(in.Parts)).Msg("multipart upload completed")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleCancelAll aborts every outstanding multipart upload in the bucket.
// Best effort: individual abort failures are counted, not fatal.
func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.store.ListMultipart(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "list uploads: "+err.Error())
		return
	}

	sum := broker.CancelSummary{Total: len(uploads)}
	for _, u := range uploads {
		if err := s.store.Abort(r.Context(), u.Key, u.UploadID); err != nil {
			s.log.Warn().Err(err).Str("key", u.Key).Str("upload_id", u.UploadID).Msg("abort failed")
			continue
		}
		sum.Aborted++
	}

	s.log.Info().Int("aborted", sum.Aborted).Int("total", sum.Total).Msg("cancel-all finished")
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.store.ListMultipart(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "list uploads: "+err.Error())
		return
	}
	if uploads == nil {
		uploads = []broker.PendingUpload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
