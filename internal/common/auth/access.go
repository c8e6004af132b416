// internal/common/auth/access.go
package auth

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

const objectRecommendations = "recommendations"

// Capability is an action a role may perform on recommendations.
type Capability string

const (
	CapRead     Capability = "read"
	CapGenerate Capability = "generate"
	CapUpdate   Capability = "update"
)

// Decision is the outcome of an access check.
type Decision int

const (
	Forbidden Decision = iota
	Authorized
)

func (d Decision) String() string {
	if d == Authorized {
		return "authorized"
	}
	return "forbidden"
}

// AccessPolicy answers capability questions from the embedded casbin policy.
type AccessPolicy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAccessPolicy() (*AccessPolicy, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load access model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}
	return &AccessPolicy{enforcer: e}, nil
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Decide resolves whether the session's role holds the capability. A nil
// session or an enforcement error is Forbidden.
func (p *AccessPolicy) Decide(s *Session, c Capability) Decision {
	if s == nil || s.Role == "" {
		return Forbidden
	}
	ok, err := p.enforcer.Enforce(s.Role, objectRecommendations, string(c))
	if err != nil || !ok {
		return Forbidden
	}
	return Authorized
}
