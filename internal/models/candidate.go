// internal/models/candidate.go
package models

import "time"

// CandidateUser carries the identity and location fields shared by both
// candidate variants.
type CandidateUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	City      string    `json:"city"`
	Commune   string    `json:"commune"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"createdAt"`
}

// OwnerCandidate is an owner without an active broker who has at least one
// active property.
type OwnerCandidate struct {
	CandidateUser
	ActiveProperties    int `json:"activeProperties"`
	UnmanagedProperties int `json:"unmanagedProperties"`
	Contracts           int `json:"contracts"`
}

// TenantCandidate is a tenant without an active broker who recently
// favorited or visited a property.
type TenantCandidate struct {
	CandidateUser
	RecentFavorites int `json:"recentFavorites"`
	RecentVisits    int `json:"recentVisits"`
	ActiveContracts int `json:"activeContracts"`
}
