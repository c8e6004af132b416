// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rent360-leads/internal/common/errors"
)

// KeycloakClient resolves sessions through Keycloak's token introspection
// endpoint. Used when auth.mode is "keycloak".
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active      bool   `json:"active"`
	Scope       string `json:"scope,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Exp         int64  `json:"exp,omitempty"`
	Sub         string `json:"sub,omitempty"`
	Iss         string `json:"iss,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	// Role is a custom mapper some realms configure instead of realm roles.
	Role string `json:"role,omitempty"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.NewExternalServiceError("keycloak",
			fmt.Errorf("introspection status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewExternalServiceError("keycloak", fmt.Errorf("decode introspection: %w", err))
	}

	if !tokenInfo.Active {
		return nil, errors.NewUnauthenticatedError("token is expired, revoked or malformed")
	}
	return &tokenInfo, nil
}

// Resolve implements Resolver.
func (k *KeycloakClient) Resolve(ctx context.Context, token string) (*Session, error) {
	info, err := k.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, errors.NewUnauthenticatedError("token has no subject")
	}
	return &Session{UserID: info.Sub, Role: roleOf(info)}, nil
}

// roleOf picks the platform role. BROKER wins over other realm roles.
func roleOf(info *TokenInfo) string {
	if info.Role != "" {
		return strings.ToUpper(info.Role)
	}
	role := ""
	for _, r := range info.RealmAccess.Roles {
		up := strings.ToUpper(r)
		if up == RoleBroker {
			return up
		}
		if role == "" && platformRoles[up] {
			role = up
		}
	}
	return role
}

var platformRoles = map[string]bool{
	"ADMIN": true, "OWNER": true, "BROKER": true, "TENANT": true, "RUNNER": true, "PROVIDER": true,
}
