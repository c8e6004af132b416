// internal/recommendations/engine.go
package recommendations

import (
	"fmt"
	"time"

	"rent360-leads/internal/common/config"
	"rent360-leads/internal/models"

	"github.com/google/uuid"
)

// Signal weights. Each one adds points to the base score when it fires.
const (
	pointsSameCity          = 15
	pointsSameCommune       = 10
	pointsManyProperties    = 20
	pointsSomeProperties    = 10
	pointsUnmanaged         = 15
	pointsRecentAccount     = 10
	pointsRecentFavorites   = 10
	pointsRecentVisits      = 15
	pointsNoActiveContract  = 10
	manyPropertiesThreshold = 3
)

// Score is a candidate's capped match score and the reasons that built it,
// in evaluation order.
type Score struct {
	Value   int
	Reasons []string
}

func (s *Score) add(points int, reason string) {
	s.Value += points
	s.Reasons = append(s.Reasons, reason)
}

// Engine scores candidates against a broker profile. It holds no state
// besides its settings and is safe for concurrent use.
type Engine struct {
	cfg     config.RecommendationsConfig
	now     func() time.Time
	observe func(models.LeadType, Score)
}

func NewEngine(cfg config.RecommendationsConfig) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the engine that reads time from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// WithScoreObserver returns a copy of the engine that reports every score
// computed by Evaluate, qualifying or not.
func (e *Engine) WithScoreObserver(fn func(models.LeadType, Score)) *Engine {
	cp := *e
	cp.observe = fn
	return &cp
}

func (e *Engine) report(lt models.LeadType, s Score) {
	if e.observe != nil {
		e.observe(lt, s)
	}
}

func (e *Engine) cap(s Score) Score {
	if s.Value > e.cfg.MaxScore {
		s.Value = e.cfg.MaxScore
	}
	return s
}

// ScoreOwner scores an owner candidate.
func (e *Engine) ScoreOwner(b models.Broker, o models.OwnerCandidate) Score {
	s := Score{Value: e.cfg.BaseScore, Reasons: []string{}}

	if b.City != "" && o.City == b.City {
		s.add(pointsSameCity, "Misma ciudad")
	}
	if b.Commune != "" && o.Commune == b.Commune {
		s.add(pointsSameCommune, "Misma comuna")
	}

	switch {
	case o.ActiveProperties >= manyPropertiesThreshold:
		s.add(pointsManyProperties, fmt.Sprintf("%d propiedades", o.ActiveProperties))
	case o.ActiveProperties >= 1:
		s.add(pointsSomeProperties, fmt.Sprintf("%d propiedad(es)", o.ActiveProperties))
	}

	if o.UnmanagedProperties > 0 {
		s.add(pointsUnmanaged, fmt.Sprintf("%d propiedad(es) sin gestión", o.UnmanagedProperties))
	}

	if !o.CreatedAt.IsZero() && e.now().Sub(o.CreatedAt) < e.cfg.ActivityWindow() {
		s.add(pointsRecentAccount, "Usuario reciente")
	}

	return e.cap(s)
}

// ScoreTenant scores a tenant candidate.
func (e *Engine) ScoreTenant(b models.Broker, t models.TenantCandidate) Score {
	s := Score{Value: e.cfg.BaseScore, Reasons: []string{}}

	if b.City != "" && t.City == b.City {
		s.add(pointsSameCity, "Misma ciudad")
	}
	if t.RecentFavorites > 0 {
		s.add(pointsRecentFavorites, fmt.Sprintf("%d favoritos recientes", t.RecentFavorites))
	}
	if t.RecentVisits > 0 {
		s.add(pointsRecentVisits, fmt.Sprintf("%d visitas realizadas", t.RecentVisits))
	}
	if t.ActiveContracts == 0 {
		s.add(pointsNoActiveContract, "Sin contrato actual")
	}

	return e.cap(s)
}

// Qualifies reports whether a score meets the acceptance threshold.
func (e *Engine) Qualifies(s Score) bool {
	return s.Value >= e.cfg.Threshold
}

// Evaluate scores both pools and returns a NEW recommendation for every
// candidate that qualifies and is not in existing. Owners come first, each
// pool in input order.
func (e *Engine) Evaluate(b models.Broker, owners []models.OwnerCandidate, tenants []models.TenantCandidate, existing map[string]bool) []models.LeadRecommendation {
	now := e.now().UTC()
	expires := now.Add(e.cfg.Expiry())

	var out []models.LeadRecommendation
	seen := make(map[string]bool, len(owners)+len(tenants))

	skip := func(id string) bool {
		return id == b.ID || existing[id] || seen[id]
	}

	for _, o := range owners {
		if skip(o.ID) {
			continue
		}
		score := e.ScoreOwner(b, o)
		e.report(models.LeadTypeOwner, score)
		if !e.Qualifies(score) {
			continue
		}
		seen[o.ID] = true
		props, contracts := o.ActiveProperties, o.Contracts
		out = append(out, e.draft(b.ID, o.CandidateUser, models.LeadTypeOwner, score, models.UserSnapshot{
			Properties: &props,
			Contracts:  &contracts,
		}, now, expires))
	}

	for _, t := range tenants {
		if skip(t.ID) {
			continue
		}
		score := e.ScoreTenant(b, t)
		e.report(models.LeadTypeTenant, score)
		if !e.Qualifies(score) {
			continue
		}
		seen[t.ID] = true
		favs, visits := t.RecentFavorites, t.RecentVisits
		out = append(out, e.draft(b.ID, t.CandidateUser, models.LeadTypeTenant, score, models.UserSnapshot{
			Favorites: &favs,
			Visits:    &visits,
		}, now, expires))
	}

	return out
}

func (e *Engine) draft(brokerID string, u models.CandidateUser, lt models.LeadType, score Score, snap models.UserSnapshot, now, expires time.Time) models.LeadRecommendation {
	snap.Name = u.Name
	snap.Email = u.Email
	snap.Phone = u.Phone
	snap.City = u.City
	snap.Commune = u.Commune

	return models.LeadRecommendation{
		ID:                uuid.NewString(),
		BrokerID:          brokerID,
		RecommendedUserID: u.ID,
		LeadType:          lt,
		MatchScore:        score.Value,
		Reasons:           score.Reasons,
		UserData:          snap,
		Status:            models.StatusNew,
		ExpiresAt:         expires,
		CreatedAt:         now,
	}
}
