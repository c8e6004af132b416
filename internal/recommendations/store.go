// internal/recommendations/store.go
package recommendations

import (
	"context"
	"time"

	"rent360-leads/internal/models"
)

// ListFilter selects the non-expired recommendations of one broker.
type ListFilter struct {
	BrokerID string
	Status   string
	Limit    int
	Now      time.Time
}

// StatusChange moves a recommendation from one status to another and stamps
// the matching lifecycle column.
type StatusChange struct {
	ID       string
	BrokerID string
	From     models.RecommendationStatus
	To       models.RecommendationStatus
	At       time.Time
}

// Store is the persistence boundary of the recommendation service.
type Store interface {
	// LoadBroker returns nil, nil when the broker does not exist.
	LoadBroker(ctx context.Context, brokerID string) (*models.Broker, error)
	BrokerExists(ctx context.Context, brokerID string) (bool, error)
	OwnerCandidates(ctx context.Context, brokerID string, limit int) ([]models.OwnerCandidate, error)
	TenantCandidates(ctx context.Context, brokerID string, since time.Time, limit int) ([]models.TenantCandidate, error)
	// ExistingFor returns the subset of userIDs that already have a
	// recommendation for the broker, in any status.
	ExistingFor(ctx context.Context, brokerID string, userIDs []string) (map[string]bool, error)
	// Insert writes all records in one statement, skipping pairs that already
	// exist, and returns the ids of the rows actually inserted.
	Insert(ctx context.Context, recs []models.LeadRecommendation) (map[string]bool, error)
	List(ctx context.Context, f ListFilter) ([]models.LeadRecommendation, error)
	// Get returns nil, nil when no recommendation with that id belongs to the broker.
	Get(ctx context.Context, brokerID, id string) (*models.LeadRecommendation, error)
	// UpdateStatus returns nil, nil when the row no longer has status From.
	UpdateStatus(ctx context.Context, c StatusChange) (*models.LeadRecommendation, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}
