// internal/models/broker.go
package models

// Broker is the location profile a scoring pass compares candidates against.
type Broker struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	City    string `json:"city,omitempty"`
	Commune string `json:"commune,omitempty"`
	Region  string `json:"region,omitempty"`
	// ActiveClients counts ACTIVE broker_clients rows where the broker is the manager.
	ActiveClients int `json:"activeClients"`
}
