// internal/common/zoho/crm.go
package zoho

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "rent360-leads/internal/common/errors"
	httpclient "rent360-leads/internal/common/http"
	"rent360-leads/internal/models"
)

const leadSource = "Rent360 Discover"

type CRMClient struct {
	baseURL string
	http    *httpclient.Client
}

type Contact struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"Email,omitempty"`
	FirstName   string `json:"First_Name,omitempty"`
	LastName    string `json:"Last_Name"`
	Phone       string `json:"Phone,omitempty"`
	City        string `json:"Mailing_City,omitempty"`
	Source      string `json:"Lead_Source,omitempty"`
	Description string `json:"Description,omitempty"`
}

type CreateContactResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"data"`
}

func NewCRMClient(baseURL, oauthToken string, timeout time.Duration) *CRMClient {
	c := httpclient.NewClient(timeout)
	c.SetHeader("Authorization", "Zoho-oauthtoken "+oauthToken)
	return &CRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    c,
	}
}

func (c *CRMClient) CreateContact(ctx context.Context, contact *Contact) (string, error) {
	var createResp CreateContactResponse
	payload := map[string]interface{}{"data": []Contact{*contact}}

	if _, err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/Contacts", payload, &createResp,
		http.StatusOK, http.StatusCreated); err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}

	if len(createResp.Data) == 0 {
		return "", fmt.Errorf("no data in response")
	}
	if createResp.Data[0].Status != "success" {
		return "", fmt.Errorf("contact creation failed: %s", createResp.Data[0].Message)
	}
	return createResp.Data[0].Details.ID, nil
}

// SearchContacts looks contacts up by email. Zoho answers 204 when nothing
// matches.
func (c *CRMClient) SearchContacts(ctx context.Context, email string) ([]Contact, error) {
	var result struct {
		Data []Contact `json:"data"`
	}
	endpoint := c.baseURL + "/Contacts/search?email=" + url.QueryEscape(email)

	if _, err := c.http.DoJSON(ctx, http.MethodGet, endpoint, nil, &result,
		http.StatusOK, http.StatusNoContent); err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return result.Data, nil
}

// ExportLead pushes a converted recommendation as a Zoho contact. A contact
// that already exists with the same email is left untouched.
func (c *CRMClient) ExportLead(ctx context.Context, rec models.LeadRecommendation) error {
	contact := ContactFromLead(rec)

	if contact.Email != "" {
		existing, err := c.SearchContacts(ctx, contact.Email)
		if err != nil {
			return apperrors.NewCRMExportFailedError(err)
		}
		if len(existing) > 0 {
			return nil
		}
	}

	if _, err := c.CreateContact(ctx, contact); err != nil {
		return apperrors.NewCRMExportFailedError(err)
	}
	return nil
}

// ContactFromLead maps the frozen user snapshot of a recommendation.
func ContactFromLead(rec models.LeadRecommendation) *Contact {
	first, last := splitName(rec.UserData.Name)

	kind := "Propietario"
	if rec.LeadType == models.LeadTypeTenant {
		kind = "Inquilino"
	}

	return &Contact{
		Email:     rec.UserData.Email,
		FirstName: first,
		LastName:  last,
		Phone:     rec.UserData.Phone,
		City:      rec.UserData.City,
		Source:    leadSource,
		Description: fmt.Sprintf("%s recomendado al corredor %s (puntaje %d): %s",
			kind, rec.BrokerID, rec.MatchScore, strings.Join(rec.Reasons, ", ")),
	}
}

// Last_Name is mandatory in Zoho.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", "Sin nombre"
	case 1:
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
