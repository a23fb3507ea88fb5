package jobs

import (
	"context"

	"meetingmind/internal/services"
)

// InsightExtractionJob runs the insight extraction pipeline on a schedule:
// unprocessed meetings first, then the cross-meeting pattern pass.
type InsightExtractionJob struct {
	insights *services.InsightService
}

// NewInsightExtractionJob creates a new extraction job
func NewInsightExtractionJob(insights *services.InsightService) *InsightExtractionJob {
	return &InsightExtractionJob{insights: insights}
}

// Run executes one extraction batch
func (j *InsightExtractionJob) Run(ctx context.Context) error {
	return j.insights.RunBatch(ctx)
}
