package engine

import (
	"context"
	"math"

	"storyline/internal/domain"
)

const recentActivityLimit = 5

// Dashboard bucket names.
const (
	BucketBacklog    = "backlog"
	BucketInProgress = "in_progress"
	BucketReview     = "review"
	BucketDone       = "done"
)

var bucketOf = map[domain.Status]string{
	domain.StatusDraft:              BucketBacklog,
	domain.StatusReadyForRefinement: BucketBacklog,
	domain.StatusRefined:            BucketInProgress,
	domain.StatusDevelopment:        BucketInProgress,
	domain.StatusReadyForTesting:    BucketReview,
	domain.StatusReadyForProduction: BucketDone,
}

// Dashboard summarizes story progress and specification coverage.
func (e Engine) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	counts, err := e.Repo.CountStoriesByStatus(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	with, total, err := e.Repo.CountSpecificationCoverage(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	recent, err := e.Repo.RecentlyUpdatedStories(ctx, recentActivityLimit)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	sum := domain.DashboardSummary{
		Buckets: map[string]int{
			BucketBacklog:    0,
			BucketInProgress: 0,
			BucketReview:     0,
			BucketDone:       0,
		},
		StatusCounts:   map[domain.Status]int{},
		RecentActivity: recent,
	}
	for _, s := range domain.Statuses() {
		n := counts[s]
		sum.StatusCounts[s] = n
		sum.Buckets[bucketOf[s]] += n
	}
	if sum.RecentActivity == nil {
		sum.RecentActivity = []domain.StoryActivity{}
	}
	sum.Coverage = domain.SpecificationCoverage{
		WithSpecification:    with,
		WithoutSpecification: total - with,
		TotalStories:         total,
		CoveragePercentage:   coveragePercent(with, total),
	}
	return sum, nil
}

func coveragePercent(with, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(with)/float64(total)*1000) / 10
}
