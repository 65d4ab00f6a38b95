package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rte-image-backend/internal/reference"
	"rte-image-backend/internal/service"
	"rte-image-backend/pkg/logger"
)

const ReferenceValidationJobName = "reference-validation"

// ReferenceMaintainer is the part of the reference service the validation job drives.
type ReferenceMaintainer interface {
	Reindex(ctx context.Context) (*service.ReindexReport, error)
	Validate(ctx context.Context, ids []uint) (*service.ValidationReport, error)
}

var (
	referenceMetricsOnce sync.Once
	referenceIssues      *prometheus.GaugeVec
)

func initReferenceMetrics() {
	referenceMetricsOnce.Do(func() {
		referenceIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rte_image",
			Name:      "reference_issues",
			Help:      "Rich-text image reference issues found by the last validation run",
		}, []string{"type"})
	})
}

// NewReferenceValidationJob rebuilds the reference index and publishes the
// issue counts of a full validation run.
func NewReferenceValidationJob(maintainer ReferenceMaintainer, timeout time.Duration) Job {
	initReferenceMetrics()

	return Job{
		Name:        ReferenceValidationJobName,
		Timeout:     timeout,
		RetryPolicy: RetryPolicy{MaxRetries: 2, Backoff: time.Minute},
		Run: func(ctx context.Context) error {
			if _, err := maintainer.Reindex(ctx); err != nil {
				return fmt.Errorf("reindex references: %w", err)
			}

			report, err := maintainer.Validate(ctx, nil)
			if err != nil {
				return err
			}

			for _, issueType := range reference.IssueTypes {
				referenceIssues.WithLabelValues(string(issueType)).Set(float64(report.Counts[issueType]))
			}

			logger.Info("Reference validation finished", map[string]interface{}{
				"records": report.Records,
				"issues":  len(report.Issues),
				"fixable": report.Fixable,
			})
			return nil
		},
	}
}
