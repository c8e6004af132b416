// internal/workers/leads/expire-recommendations/models.go
package expirerecommendations

type Input struct {
	RetentionDays int `json:"retentionDays,omitempty"`
}

type Output struct {
	Expired int64 `json:"expired"`
	Purged  int64 `json:"purged"`
}
