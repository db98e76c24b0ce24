// Package snapshot exports a point-in-time panel state blob to an
// S3-compatible bucket, per SPEC_FULL.md §5 "Snapshot export to S3".
//
// This is write-only and opaque: the runtime never reads a snapshot
// back. It exists for operator backup/audit, not for resuming panel
// state, per the Non-goals carried from spec.md ("persistent durable
// state beyond snapshots").
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 snapshot destination, adapted
// from the teacher's lode/client_s3.go S3Config.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers (R2, MinIO, etc.).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// Exporter writes panel snapshots to S3. It holds no reference to
// panelmgr types — callers pass an already-marshaled state document so
// this package stays a leaf with no dependency on the sandbox/panelmgr
// stack.
type Exporter struct {
	client *s3.Client
	cfg    S3Config
}

// NewExporter builds an Exporter using the AWS SDK's default credential
// chain (env vars, shared config, IAM role).
func NewExporter(ctx context.Context, cfg S3Config) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			o.BaseEndpoint = &endpoint
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Exporter{client: client, cfg: cfg}, nil
}

// Document is the JSON body written for one panel snapshot.
type Document struct {
	PanelID   string         `json:"panelId"`
	Kind      string         `json:"kind"`
	Status    string         `json:"status"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// Export writes doc to "<prefix>/<panelId>/<unix-nanos>.json" in the
// configured bucket and returns the object key.
func (e *Exporter) Export(ctx context.Context, doc Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := objectKey(e.cfg.Prefix, doc.PanelID, doc.Timestamp)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot object: %w", err)
	}
	return key, nil
}

func objectKey(prefix, panelID string, ts time.Time) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.TrimSuffix(prefix, "/"))
		b.WriteString("/")
	}
	b.WriteString(panelID)
	b.WriteString("/")
	fmt.Fprintf(&b, "%d.json", ts.UnixNano())
	return b.String()
}
