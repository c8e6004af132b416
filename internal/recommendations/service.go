// internal/recommendations/service.go
package recommendations

import (
	"context"
	"errors"
	"time"

	"rent360-leads/internal/common/config"
	apperrors "rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/metrics"
	"rent360-leads/internal/common/observability"
	"rent360-leads/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notifier tells a broker that a pass produced new recommendations.
type Notifier interface {
	NotifyGenerated(ctx context.Context, broker models.Broker, result models.GenerationResult) error
}

// LeadExporter pushes a converted lead to an external CRM.
type LeadExporter interface {
	ExportLead(ctx context.Context, rec models.LeadRecommendation) error
}

type Option func(*Service)

func WithLock(l *GenerationLock) Option {
	return func(s *Service) { s.lock = l }
}

func WithBrokerCache(c *BrokerCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithExporter(e LeadExporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

// Service runs scoring passes and serves the broker's recommendation list.
// Lock, cache, notifier and exporter are optional.
type Service struct {
	cfg      config.RecommendationsConfig
	store    Store
	engine   *Engine
	lock     *GenerationLock
	cache    *BrokerCache
	notifier Notifier
	exporter LeadExporter
	obs      *observability.Observability
	tracer   trace.Tracer
	logger   logger.Logger
	now      func() time.Time
}

func NewService(cfg config.RecommendationsConfig, store Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "recommendations"}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = s.obs.Tracer()
	s.engine = NewEngine(cfg).
		WithClock(s.now).
		WithScoreObserver(func(lt models.LeadType, sc Score) {
			metrics.CandidateScore.WithLabelValues(string(lt)).Observe(float64(sc.Value))
		})
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Generate runs one scoring pass for the broker. Passes for the same broker
// are serialised by the generation lock when one is configured; the unique
// (broker, user) index keeps the result correct without it.
func (s *Service) Generate(ctx context.Context, brokerID string) (result models.GenerationResult, err error) {
	ctx, span := s.startSpan(ctx, "recommendations.Generate", attribute.String("broker.id", brokerID))
	start := s.now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(apperrors.AsStandardError(err).Code)
		}
		metrics.GenerationPasses.WithLabelValues(outcome).Inc()
		s.obs.RecordPass(ctx, s.now().Sub(start), outcome)
		endSpan(span, err)
	}()

	log := s.logger.WithFields(map[string]interface{}{"brokerId": brokerID})

	if s.lock != nil {
		release, lockErr := s.lock.Acquire(ctx, brokerID)
		switch {
		case errors.Is(lockErr, ErrLockHeld):
			return result, apperrors.NewGenerationInProgressError(brokerID)
		case lockErr != nil:
			log.Warn("generation lock unavailable, continuing without it", map[string]interface{}{"error": lockErr})
		default:
			defer func() {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if relErr := release(rctx); relErr != nil {
					log.Warn("failed to release generation lock", map[string]interface{}{"error": relErr})
				}
			}()
		}
	}

	broker, err := s.loadBroker(ctx, brokerID)
	if err != nil {
		return result, err
	}

	owners, err := s.store.OwnerCandidates(ctx, brokerID, s.cfg.CandidateLimit)
	if err != nil {
		return result, apperrors.NewDatabaseQueryFailedError("owner candidates", err)
	}
	since := s.now().Add(-s.cfg.ActivityWindow())
	tenants, err := s.store.TenantCandidates(ctx, brokerID, since, s.cfg.CandidateLimit)
	if err != nil {
		return result, apperrors.NewDatabaseQueryFailedError("tenant candidates", err)
	}

	ids := make([]string, 0, len(owners)+len(tenants))
	for _, o := range owners {
		ids = append(ids, o.ID)
	}
	for _, t := range tenants {
		ids = append(ids, t.ID)
	}
	existing, err := s.store.ExistingFor(ctx, brokerID, ids)
	if err != nil {
		return result, apperrors.NewDatabaseQueryFailedError("existing recommendations", err)
	}

	drafts := s.engine.Evaluate(*broker, owners, tenants, existing)

	inserted, err := s.store.Insert(ctx, drafts)
	if err != nil {
		return result, apperrors.NewDatabaseInsertFailedError(err)
	}

	for _, d := range drafts {
		if !inserted[d.ID] {
			continue
		}
		result.Generated++
		switch d.LeadType {
		case models.LeadTypeOwner:
			result.Owners++
		case models.LeadTypeTenant:
			result.Tenants++
		}
	}
	metrics.RecommendationsGenerated.WithLabelValues(string(models.LeadTypeOwner)).Add(float64(result.Owners))
	metrics.RecommendationsGenerated.WithLabelValues(string(models.LeadTypeTenant)).Add(float64(result.Tenants))

	log.Info("recommendations generated", map[string]interface{}{
		"owners":     len(owners),
		"tenants":    len(tenants),
		"qualified":  len(drafts),
		"generated":  result.Generated,
		"conflicted": len(drafts) - result.Generated,
		"traceId":    observability.TraceID(ctx),
	})

	if result.Generated > 0 && s.notifier != nil {
		if nErr := s.notifier.NotifyGenerated(ctx, *broker, result); nErr != nil {
			log.Warn("broker notification failed", map[string]interface{}{"error": nErr})
		}
	}

	return result, nil
}

func (s *Service) loadBroker(ctx context.Context, brokerID string) (*models.Broker, error) {
	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, brokerID); ok {
			exists, err := s.store.BrokerExists(ctx, brokerID)
			if err != nil {
				return nil, apperrors.NewDatabaseQueryFailedError("load broker", err)
			}
			if exists {
				return b, nil
			}
			if err := s.cache.Invalidate(ctx, brokerID); err != nil {
				s.logger.Debug("stale broker profile not evicted", map[string]interface{}{"brokerId": brokerID, "error": err})
			}
			return nil, apperrors.NewBrokerNotFoundError(brokerID)
		}
	}

	b, err := s.store.LoadBroker(ctx, brokerID)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("load broker", err)
	}
	if b == nil {
		return nil, apperrors.NewBrokerNotFoundError(brokerID)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, b); err != nil {
			s.logger.Debug("broker profile not cached", map[string]interface{}{"brokerId": brokerID, "error": err})
		}
	}
	return b, nil
}

// ListQuery is the validated input of List.
type ListQuery struct {
	BrokerID string
	Status   string
	Limit    int
}

// List returns the broker's non-expired recommendations, best score first,
// and the status breakdown of the returned page.
func (s *Service) List(ctx context.Context, q ListQuery) (recs []models.LeadRecommendation, meta models.ListMeta, err error) {
	ctx, span := s.startSpan(ctx, "recommendations.List", attribute.String("broker.id", q.BrokerID))
	defer func() { endSpan(span, err) }()

	if q.Status != "" && !models.ValidStatus(q.Status) {
		return nil, meta, apperrors.NewInvalidRequestError("unknown status " + q.Status)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultListLimit
	}
	if limit > s.cfg.MaxListLimit {
		limit = s.cfg.MaxListLimit
	}

	recs, err = s.store.List(ctx, ListFilter{
		BrokerID: q.BrokerID,
		Status:   q.Status,
		Limit:    limit,
		Now:      s.now().UTC(),
	})
	if err != nil {
		return nil, meta, apperrors.NewDatabaseQueryFailedError("list recommendations", err)
	}

	meta.Total = len(recs)
	for _, r := range recs {
		switch r.Status {
		case models.StatusNew:
			meta.New++
		case models.StatusViewed:
			meta.Viewed++
		}
	}
	return recs, meta, nil
}

// UpdateStatus applies a broker action to one of their recommendations.
// Recommendations of other brokers are reported as not found.
func (s *Service) UpdateStatus(ctx context.Context, brokerID, id string, action Action) (rec *models.LeadRecommendation, err error) {
	ctx, span := s.startSpan(ctx, "recommendations.UpdateStatus",
		attribute.String("broker.id", brokerID),
		attribute.String("recommendation.id", id),
		attribute.String("action", string(action)))
	defer func() { endSpan(span, err) }()

	if !action.Valid() {
		return nil, apperrors.NewInvalidRequestError("unknown action " + string(action))
	}
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, apperrors.NewRecommendationNotFoundError(id)
	}

	current, err := s.store.Get(ctx, brokerID, id)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("get recommendation", err)
	}
	if current == nil {
		return nil, apperrors.NewRecommendationNotFoundError(id)
	}

	now := s.now().UTC()
	from := current.Status
	if now.After(current.ExpiresAt) {
		from = models.StatusExpired
	}

	to, unchanged, ok := nextStatus(from, action)
	if !ok {
		return nil, apperrors.NewInvalidStatusTransitionError(string(from), string(action))
	}
	if unchanged {
		return current, nil
	}

	updated, err := s.store.UpdateStatus(ctx, StatusChange{
		ID:       id,
		BrokerID: brokerID,
		From:     current.Status,
		To:       to,
		At:       now,
	})
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("update recommendation", err)
	}
	if updated == nil {
		// Changed by someone else between read and write.
		return nil, apperrors.NewInvalidStatusTransitionError(string(current.Status), string(action))
	}

	metrics.StatusChanges.WithLabelValues(string(action)).Inc()
	s.logger.Info("recommendation status updated", map[string]interface{}{
		"brokerId":         brokerID,
		"recommendationId": id,
		"from":             string(current.Status),
		"to":               string(to),
	})

	if to == models.StatusConverted && s.exporter != nil {
		if exErr := s.exporter.ExportLead(ctx, *updated); exErr != nil {
			s.logger.Warn("crm export failed", map[string]interface{}{
				"recommendationId": id,
				"error":            apperrors.NewCRMExportFailedError(exErr),
			})
		}
	}

	return updated, nil
}

// ExpireStale marks lapsed recommendations EXPIRED and deletes EXPIRED and
// DISMISSED rows last touched before now-retention. A non-positive retention
// uses the configured default.
func (s *Service) ExpireStale(ctx context.Context, retention time.Duration) (res models.SweepResult, err error) {
	ctx, span := s.startSpan(ctx, "recommendations.ExpireStale")
	defer func() { endSpan(span, err) }()

	if retention <= 0 {
		retention = s.cfg.Retention()
	}
	now := s.now().UTC()

	res.Expired, err = s.store.MarkExpired(ctx, now)
	if err != nil {
		return res, apperrors.NewDatabaseQueryFailedError("mark expired", err)
	}
	res.Purged, err = s.store.Purge(ctx, now.Add(-retention))
	if err != nil {
		return res, apperrors.NewDatabaseQueryFailedError("purge recommendations", err)
	}

	metrics.RecommendationsSwept.WithLabelValues("expired").Add(float64(res.Expired))
	metrics.RecommendationsSwept.WithLabelValues("purged").Add(float64(res.Purged))
	s.logger.Info("recommendation sweep finished", map[string]interface{}{
		"expired":   res.Expired,
		"purged":    res.Purged,
		"retention": retention.String(),
	})
	return res, nil
}
