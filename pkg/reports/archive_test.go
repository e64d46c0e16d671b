package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryBucket) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Key)
	m.objects[key] = data
	m.types[key] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

type recordingAudit struct {
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func testSummary(tenantID int64, label int) *Summary {
	t := &tenants.Tenant{ID: tenantID, FinancialYearStartMonth: 1, FinancialYearEndMonth: 12}
	return &Summary{
		TenantID:      tenantID,
		TenantName:    "Speccon",
		FinancialYear: t.FinancialYearEnding(label),
		Totals:        Totals{Clients: 3, AnnualValue: 900},
	}
}

func TestArchiveUploadsJSON(t *testing.T) {
	bucket := newMemoryBucket()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	rec := &recordingAudit{}
	ctx := audit.WithLogger(context.Background(), rec)

	archiver := NewArchiver(bucket, "reports", metrics)
	key, err := archiver.Archive(ctx, testSummary(1, 2026))
	require.NoError(t, err)
	assert.Equal(t, "financials/tenant-1/fy-2026.json", key)
	assert.Equal(t, "application/json", bucket.types[key])

	var stored Summary
	require.NoError(t, json.Unmarshal(bucket.objects[key], &stored))
	assert.Equal(t, 3, stored.Totals.Clients)
	assert.Equal(t, 2026, stored.FinancialYear.Label)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReportArchivesTotal.WithLabelValues("success")))
	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.EventTypeOpsReportArchive, rec.events[0].EventType)
	assert.Equal(t, key, rec.events[0].ResourceID)
}

func TestArchiveFailure(t *testing.T) {
	bucket := newMemoryBucket()
	bucket.fail = errors.New("access denied")
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	archiver := NewArchiver(bucket, "reports", metrics)
	keys, err := archiver.ArchiveAll(context.Background(), []*Summary{testSummary(1, 2026), testSummary(2, 2026)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant 1")
	assert.Empty(t, keys)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReportArchivesTotal.WithLabelValues("error")))
}

func TestArchiveAll(t *testing.T) {
	bucket := newMemoryBucket()
	archiver := NewArchiver(bucket, "reports", nil)

	keys, err := archiver.ArchiveAll(context.Background(), []*Summary{testSummary(1, 2026), testSummary(2, 2025)})
	require.NoError(t, err)
	assert.Equal(t, []string{"financials/tenant-1/fy-2026.json", "financials/tenant-2/fy-2025.json"}, keys)
	assert.Len(t, bucket.objects, 2)
}
