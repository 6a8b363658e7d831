// Package gateway wraps the S3-compatible object storage API used by the
// broker daemon: multipart initiation, per-part presigning, completion,
// abort, and enumeration of outstanding uploads.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/r2labs/uplink/internal/broker"
	"github.com/r2labs/uplink/internal/config"
)

// Gateway issues gateway calls and presigned URLs against one bucket.
type Gateway struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	presignTTL time.Duration
	log        zerolog.Logger
}

// New creates a Gateway from broker settings. R2 and other S3-compatible
// stores are addressed via the configured endpoint with path-style keys.
func New(ctx context.Context, cfg config.BrokerSettings, log zerolog.Logger) (*Gateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL)
		o.UsePathStyle = true
	})

	return &Gateway{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		presignTTL: cfg.PresignTTL,
		log:        log,
	}, nil
}

// PresignPutObject issues a presigned single-object PUT URL. The returned
// headers are covered by the signature and must be sent verbatim.
func (g *Gateway) PresignPutObject(ctx context.Context, key, contentType string, metadata map[string]string) (string, map[string]string, error) {
	in := &s3.PutObjectInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		Metadata: metadata,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := g.presigner.PresignPutObject(ctx, in, func(opts *s3.PresignOptions) {
		opts.Expires = g.presignTTL
	})
	if err != nil {
		return "", nil, fmt.Errorf("presign put %s: %w", key, err)
	}

	headers := make(map[string]string, len(req.SignedHeader))
	for name, values := range req.SignedHeader {
		if len(values) > 0 && name != "Host" {
			headers[name] = values[0]
		}
	}
	return req.URL, headers, nil
}

// CreateMultipart initiates a multipart upload and returns its uploadId.
// The uploadId is required for every subsequent part, complete, and abort
// call; losing it strands the upload until cancel-all collects it.
func (g *Gateway) CreateMultipart(ctx context.Context, key, contentType string, metadata map[string]string) (string, error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		Metadata: metadata,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	resp, err := g.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", fmt.Errorf("create multipart upload for %s: %w", key, err)
	}
	if resp.UploadId == nil || *resp.UploadId == "" {
		return "", fmt.Errorf("create multipart upload for %s: gateway returned empty uploadId", key)
	}
	return *resp.UploadId, nil
}

// PresignPart issues a presigned PUT URL for one part of an open upload.
func (g *Gateway) PresignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	req, err := g.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = g.presignTTL
	})
	if err != nil {
		return "", fmt.Errorf("presign part %d of %s: %w", partNumber, key, err)
	}
	return req.URL, nil
}

// Complete commits a multipart upload. Parts are sorted ascending by part
// number before the gateway call; the gateway rejects any other order.
func (g *Gateway) Complete(ctx context.Context, key, uploadID string, parts []broker.CompletedPart) error {
	sorted := make([]broker.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})

	completed := make([]types.CompletedPart, len(sorted))
	for i, p := range sorted {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(g.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload for %s: %w", key, err)
	}
	return nil
}

// Abort cancels one open multipart upload, discarding its stored parts.
func (g *Gateway) Abort(ctx context.Context, key, uploadID string) error {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload for %s: %w", key, err)
	}
	return nil
}

// ListMultipart enumerates all outstanding multipart uploads in the bucket,
// following pagination markers until the listing is exhausted.
func (g *Gateway) ListMultipart(ctx context.Context) ([]broker.PendingUpload, error) {
	var pending []broker.PendingUpload
	var keyMarker, uploadIDMarker *string

	for {
		resp, err := g.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
			Bucket:         aws.String(g.bucket),
			KeyMarker:      keyMarker,
			UploadIdMarker: uploadIDMarker,
		})
		if err != nil {
			return nil, fmt.Errorf("list multipart uploads: %w", err)
		}

		for _, u := range resp.Uploads {
			p := broker.PendingUpload{
				Key:      aws.ToString(u.Key),
				UploadID: aws.ToString(u.UploadId),
			}
			if u.Initiated != nil {
				p.Initiated = *u.Initiated
			}
			pending = append(pending, p)
		}

		if resp.IsTruncated == nil || !*resp.IsTruncated {
			return pending, nil
		}
		keyMarker = resp.NextKeyMarker
		uploadIDMarker = resp.NextUploadIdMarker
	}
}
