// internal/models/recommendation.go
package models

import (
	"encoding/json"
	"time"
)

type LeadType string

const (
	LeadTypeOwner  LeadType = "OWNER_LEAD"
	LeadTypeTenant LeadType = "TENANT_LEAD"
)

type RecommendationStatus string

const (
	StatusNew       RecommendationStatus = "NEW"
	StatusViewed    RecommendationStatus = "VIEWED"
	StatusContacted RecommendationStatus = "CONTACTED"
	StatusConverted RecommendationStatus = "CONVERTED"
	StatusDismissed RecommendationStatus = "DISMISSED"
	StatusExpired   RecommendationStatus = "EXPIRED"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s string) bool {
	switch RecommendationStatus(s) {
	case StatusNew, StatusViewed, StatusContacted, StatusConverted, StatusDismissed, StatusExpired:
		return true
	}
	return false
}

// LeadRecommendation is one persisted (broker, candidate) suggestion.
type LeadRecommendation struct {
	ID                string               `json:"id"`
	BrokerID          string               `json:"brokerId"`
	RecommendedUserID string               `json:"recommendedUserId"`
	LeadType          LeadType             `json:"leadType"`
	MatchScore        int                  `json:"matchScore"`
	Reasons           []string             `json:"reasons"`
	UserData          UserSnapshot         `json:"userData"`
	Status            RecommendationStatus `json:"status"`
	ExpiresAt         time.Time            `json:"expiresAt"`
	ViewedAt          *time.Time           `json:"viewedAt,omitempty"`
	ContactedAt       *time.Time           `json:"contactedAt,omitempty"`
	ConvertedAt       *time.Time           `json:"convertedAt,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	RecommendedUser   *RecommendedUser     `json:"recommendedUser,omitempty"`
}

// UserSnapshot is the candidate's display data frozen at scoring time.
// Owner snapshots fill Properties/Contracts, tenant snapshots Favorites/Visits.
type UserSnapshot struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	City       string `json:"city"`
	Commune    string `json:"commune"`
	Properties *int   `json:"properties,omitempty"`
	Contracts  *int   `json:"contracts,omitempty"`
	Favorites  *int   `json:"favorites,omitempty"`
	Visits     *int   `json:"visits,omitempty"`
}

// JSON encodes the snapshot for the JSONB column.
func (u UserSnapshot) JSON() ([]byte, error) {
	return json.Marshal(u)
}

// RecommendedUser is the live user row joined into list responses.
type RecommendedUser struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Role      string         `json:"role"`
	City      string         `json:"city"`
	Commune   string         `json:"commune"`
	Region    string         `json:"region"`
	CreatedAt time.Time      `json:"createdAt"`
	LastLogin *time.Time     `json:"lastLogin,omitempty"`
	Count     RecommendCount `json:"_count"`
}

type RecommendCount struct {
	Properties        int `json:"properties"`
	ContractsAsOwner  int `json:"contractsAsOwner"`
	ContractsAsTenant int `json:"contractsAsTenant"`
}

// GenerationResult is the outcome of one scoring pass. Counts reflect rows
// actually inserted.
type GenerationResult struct {
	Generated int `json:"generated"`
	Owners    int `json:"owners"`
	Tenants   int `json:"tenants"`
}

// ListMeta summarises the returned page.
type ListMeta struct {
	Total  int `json:"total"`
	New    int `json:"new"`
	Viewed int `json:"viewed"`
}

// SweepResult is the outcome of an expiry sweep.
type SweepResult struct {
	Expired int64 `json:"expired"`
	Purged  int64 `json:"purged"`
}
