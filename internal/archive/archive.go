// Package archive persists monitor-run reports as JSON documents, either
// on local disk or in S3. Reports are written once and never mutated.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/ignite/campaign-optimizer/internal/config"
)

// Archiver stores one JSON report per monitor run.
type Archiver interface {
	SaveRunReport(ctx context.Context, campaignID, runID string, report interface{}) error
}

// runKey is the canonical object key for one run report.
func runKey(campaignID, runID string) string {
	return fmt.Sprintf("optimizer/runs/%s/%s.json", campaignID, runID)
}

// New builds the archiver the config asks for.
func New(ctx context.Context, cfg appconfig.ArchiveConfig) (Archiver, error) {
	if cfg.Type == "s3" {
		return newS3Archiver(ctx, cfg)
	}
	return &LocalArchiver{root: cfg.LocalPath}, nil
}

// LocalArchiver writes reports under a local directory tree.
type LocalArchiver struct {
	root string
}

// SaveRunReport writes the report to {root}/optimizer/runs/{campaign}/{run}.json.
func (a *LocalArchiver) SaveRunReport(_ context.Context, campaignID, runID string, report interface{}) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	path := filepath.Join(a.root, filepath.FromSlash(runKey(campaignID, runID)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// S3Archiver writes reports to an S3 bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

func newS3Archiver(ctx context.Context, cfg appconfig.ArchiveConfig) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
	}, nil
}

// SaveRunReport puts the report at optimizer/runs/{campaign}/{run}.json.
func (a *S3Archiver) SaveRunReport(ctx context.Context, campaignID, runID string, report interface{}) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(runKey(campaignID, runID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting report to S3: %w", err)
	}
	return nil
}
