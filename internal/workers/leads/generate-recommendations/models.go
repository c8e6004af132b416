// internal/workers/leads/generate-recommendations/models.go
package generaterecommendations

type Input struct {
	BrokerID string `json:"brokerId"`
}

type Output struct {
	Generated int `json:"generated"`
	Owners    int `json:"owners"`
	Tenants   int `json:"tenants"`
}
