package reports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/config"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

// ObjectPutter is the part of the S3 API the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the reports configuration. Static
// keys are used when both are set, otherwise the default credential chain.
func NewS3Client(ctx context.Context, cfg config.ReportsConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	}), nil
}

// Archiver writes report summaries to object storage as JSON
type Archiver struct {
	client  ObjectPutter
	bucket  string
	metrics *observability.Metrics
}

// NewArchiver creates an archiver. metrics may be nil.
func NewArchiver(client ObjectPutter, bucket string, metrics *observability.Metrics) *Archiver {
	return &Archiver{client: client, bucket: bucket, metrics: metrics}
}

// ObjectKey is where a summary is stored. Re-archiving the same tenant and
// year overwrites the previous object.
func ObjectKey(s *Summary) string {
	return fmt.Sprintf("financials/tenant-%d/fy-%d.json", s.TenantID, s.FinancialYear.Label)
}

// Archive uploads one summary and returns its key
func (a *Archiver) Archive(ctx context.Context, s *Summary) (string, error) {
	key := ObjectKey(s)
	ctx, span := tracer.Start(ctx, "reports.Archive",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		a.record("error")
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	hash := sha256.Sum256(data)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload report")
		a.record("error")
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	a.record("success")
	event := audit.NewEvent(ctx, audit.EventTypeOpsReportArchive, audit.EventStatusSuccess)
	event.ResourceType = "financial_report"
	event.ResourceID = key
	event.TenantID = &s.TenantID
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit report archive")
	}
	return key, nil
}

// ArchiveAll uploads every summary and returns the keys written. It stops
// at the first failure.
func (a *Archiver) ArchiveAll(ctx context.Context, summaries []*Summary) ([]string, error) {
	keys := make([]string, 0, len(summaries))
	for _, s := range summaries {
		key, err := a.Archive(ctx, s)
		if err != nil {
			return keys, fmt.Errorf("tenant %d: %w", s.TenantID, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (a *Archiver) record(status string) {
	if a.metrics != nil {
		a.metrics.ReportArchivesTotal.WithLabelValues(status).Inc()
	}
}
