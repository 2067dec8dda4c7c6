// Package publish uploads the outputs of a completed run to object storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/agentic-research/tarim/internal/config"
	"github.com/agentic-research/tarim/internal/output"
)

// ErrNoRun is returned when the data directory has no run report, i.e. no
// run has completed there.
var ErrNoRun = errors.New("no completed run in data directory")

// PutObjectAPI is the part of the S3 client the publisher needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads run outputs to one bucket under a key prefix.
type Publisher struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
	Log    *slog.Logger
}

// NewS3 creates a publisher from the publish "s3" config block. Credentials
// come from the default AWS chain.
func NewS3(ctx context.Context, cfg *config.Publish) (*Publisher, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Publisher{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// Result lists what Publish uploaded.
type Result struct {
	RunID string
	Keys  []string
}

// runManifest is the subset of run_report.json Publish relies on.
type runManifest struct {
	RunID   string   `json:"run_id"`
	Command string   `json:"command"`
	Files   []string `json:"files"`
}

// Key returns the object key for an output file.
func (p *Publisher) Key(name string) string {
	if p.Prefix == "" {
		return name
	}
	return path.Join(p.Prefix, name)
}

// Publish uploads the files listed in the run report of dir, the report
// itself last. Files of an older run that are not in the report stay local.
func (p *Publisher) Publish(ctx context.Context, dir *output.Dir) (*Result, error) {
	log := p.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if !dir.Exists(output.ReportFile) {
		return nil, ErrNoRun
	}
	var m runManifest
	if err := dir.ReadJSON(output.ReportFile, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRun, err)
	}

	files := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		if f != output.ReportFile {
			files = append(files, f)
		}
	}
	files = append(files, output.ReportFile)

	res := &Result{RunID: m.RunID}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := dir.ReadFile(name)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", name, err)
		}
		key := p.Key(name)
		in := &s3.PutObjectInput{
			Bucket:      aws.String(p.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType(name)),
			Metadata:    map[string]string{"run-id": m.RunID, "command": m.Command},
		}
		if _, err := p.Client.PutObject(ctx, in); err != nil {
			return res, fmt.Errorf("put s3://%s/%s: %w", p.Bucket, key, err)
		}
		log.Info("uploaded", "bucket", p.Bucket, "key", key, "bytes", len(data))
		res.Keys = append(res.Keys, key)
	}
	return res, nil
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
