// internal/recommendations/store_postgres.go
package recommendations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rent360-leads/internal/models"

	"github.com/lib/pq"
)

// PostgresStore reads candidates from the platform tables and owns the
// broker_lead_recommendations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const loadBrokerQuery = `
SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.phone, ''),
       COALESCE(u.city, ''), COALESCE(u.commune, ''), COALESCE(u.region, ''),
       (SELECT COUNT(*) FROM broker_clients bc WHERE bc.broker_id = u.id AND bc.status = 'ACTIVE')
FROM users u
WHERE u.id = $1`

func (s *PostgresStore) LoadBroker(ctx context.Context, brokerID string) (*models.Broker, error) {
	var b models.Broker
	err := s.db.QueryRowContext(ctx, loadBrokerQuery, brokerID).Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone, &b.City, &b.Commune, &b.Region, &b.ActiveClients,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load broker: %w", err)
	}
	return &b, nil
}

const brokerExistsQuery = `SELECT EXISTS (SELECT 1 FROM users u WHERE u.id = $1)`

func (s *PostgresStore) BrokerExists(ctx context.Context, brokerID string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, brokerExistsQuery, brokerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("broker exists: %w", err)
	}
	return ok, nil
}

// Candidates must not be managed by any broker: no ACTIVE broker_clients row
// names them as client.
const ownerCandidatesQuery = `
SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.phone, ''),
       COALESCE(u.city, ''), COALESCE(u.commune, ''), COALESCE(u.region, ''), u.created_at,
       (SELECT COUNT(*) FROM properties p WHERE p.owner_id = u.id AND p.is_active),
       (SELECT COUNT(*) FROM properties p WHERE p.owner_id = u.id AND p.is_active
            AND p.status IN ('AVAILABLE', 'PENDING')),
       (SELECT COUNT(*) FROM contracts c WHERE c.owner_id = u.id)
FROM users u
WHERE u.role = 'OWNER'
  AND u.is_active
  AND u.id <> $1
  AND NOT EXISTS (SELECT 1 FROM broker_clients bc WHERE bc.client_id = u.id AND bc.status = 'ACTIVE')
  AND EXISTS (SELECT 1 FROM properties p WHERE p.owner_id = u.id AND p.is_active)
ORDER BY u.created_at DESC
LIMIT $2`

func (s *PostgresStore) OwnerCandidates(ctx context.Context, brokerID string, limit int) ([]models.OwnerCandidate, error) {
	rows, err := s.db.QueryContext(ctx, ownerCandidatesQuery, brokerID, limit)
	if err != nil {
		return nil, fmt.Errorf("owner candidates: %w", err)
	}
	defer rows.Close()

	var out []models.OwnerCandidate
	for rows.Next() {
		var o models.OwnerCandidate
		if err := rows.Scan(
			&o.ID, &o.Name, &o.Email, &o.Phone, &o.City, &o.Commune, &o.Region, &o.CreatedAt,
			&o.ActiveProperties, &o.UnmanagedProperties, &o.Contracts,
		); err != nil {
			return nil, fmt.Errorf("scan owner candidate: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const tenantCandidatesQuery = `
SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.phone, ''),
       COALESCE(u.city, ''), COALESCE(u.commune, ''), COALESCE(u.region, ''), u.created_at,
       (SELECT COUNT(*) FROM property_favorites f WHERE f.user_id = u.id AND f.created_at >= $2),
       (SELECT COUNT(*) FROM visits v WHERE v.tenant_id = u.id AND v.created_at >= $2),
       (SELECT COUNT(*) FROM contracts c WHERE c.tenant_id = u.id AND c.status = 'ACTIVE')
FROM users u
WHERE u.role = 'TENANT'
  AND u.is_active
  AND u.id <> $1
  AND NOT EXISTS (SELECT 1 FROM broker_clients bc WHERE bc.client_id = u.id AND bc.status = 'ACTIVE')
  AND (EXISTS (SELECT 1 FROM property_favorites f WHERE f.user_id = u.id AND f.created_at >= $2)
       OR EXISTS (SELECT 1 FROM visits v WHERE v.tenant_id = u.id AND v.created_at >= $2))
ORDER BY u.created_at DESC
LIMIT $3`

func (s *PostgresStore) TenantCandidates(ctx context.Context, brokerID string, since time.Time, limit int) ([]models.TenantCandidate, error) {
	rows, err := s.db.QueryContext(ctx, tenantCandidatesQuery, brokerID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("tenant candidates: %w", err)
	}
	defer rows.Close()

	var out []models.TenantCandidate
	for rows.Next() {
		var t models.TenantCandidate
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Email, &t.Phone, &t.City, &t.Commune, &t.Region, &t.CreatedAt,
			&t.RecentFavorites, &t.RecentVisits, &t.ActiveContracts,
		); err != nil {
			return nil, fmt.Errorf("scan tenant candidate: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ExistingFor(ctx context.Context, brokerID string, userIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(userIDs) == 0 {
		return existing, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT recommended_user_id FROM broker_lead_recommendations
		WHERE broker_id = $1 AND recommended_user_id = ANY($2)`,
		brokerID, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("existing recommendations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

const insertColumns = 10

func (s *PostgresStore) Insert(ctx context.Context, recs []models.LeadRecommendation) (map[string]bool, error) {
	inserted := make(map[string]bool, len(recs))
	if len(recs) == 0 {
		return inserted, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO broker_lead_recommendations
		(id, broker_id, recommended_user_id, lead_type, match_score, reasons, user_data, status, expires_at, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(recs)*insertColumns)
	for i, r := range recs {
		userData, err := r.UserData.JSON()
		if err != nil {
			return nil, fmt.Errorf("encode user data for %s: %w", r.RecommendedUserID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * insertColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d::jsonb, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10)
		args = append(args,
			r.ID, r.BrokerID, r.RecommendedUserID, string(r.LeadType), r.MatchScore,
			pq.Array(r.Reasons), string(userData), string(r.Status), r.ExpiresAt, r.CreatedAt,
		)
	}
	sb.WriteString(" ON CONFLICT (broker_id, recommended_user_id) DO NOTHING RETURNING id")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert recommendations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		inserted[id] = true
	}
	return inserted, rows.Err()
}

const recommendationColumns = `
r.id, r.broker_id, r.recommended_user_id, r.lead_type, r.match_score, r.reasons, r.user_data,
r.status, r.expires_at, r.viewed_at, r.contacted_at, r.converted_at, r.created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner, extra ...interface{}) (*models.LeadRecommendation, error) {
	var (
		r                     models.LeadRecommendation
		leadType, status      string
		userData              []byte
		viewedAt, contactedAt sql.NullTime
		convertedAt           sql.NullTime
	)
	dest := []interface{}{
		&r.ID, &r.BrokerID, &r.RecommendedUserID, &leadType, &r.MatchScore, pq.Array(&r.Reasons), &userData,
		&status, &r.ExpiresAt, &viewedAt, &contactedAt, &convertedAt, &r.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	r.LeadType = models.LeadType(leadType)
	r.Status = models.RecommendationStatus(status)
	r.ViewedAt = nullTime(viewedAt)
	r.ContactedAt = nullTime(contactedAt)
	r.ConvertedAt = nullTime(convertedAt)
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	if len(userData) > 0 {
		if err := json.Unmarshal(userData, &r.UserData); err != nil {
			return nil, fmt.Errorf("decode user data of %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]models.LeadRecommendation, error) {
	query := `SELECT ` + recommendationColumns + `,
       u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.phone, ''), u.role,
       COALESCE(u.city, ''), COALESCE(u.commune, ''), COALESCE(u.region, ''), u.created_at, u.last_login,
       (SELECT COUNT(*) FROM properties p WHERE p.owner_id = u.id),
       (SELECT COUNT(*) FROM contracts c WHERE c.owner_id = u.id),
       (SELECT COUNT(*) FROM contracts c WHERE c.tenant_id = u.id)
FROM broker_lead_recommendations r
JOIN users u ON u.id = r.recommended_user_id
WHERE r.broker_id = $1 AND r.expires_at >= $2`

	args := []interface{}{f.BrokerID, f.Now}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY r.match_score DESC, r.created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	out := []models.LeadRecommendation{}
	for rows.Next() {
		var (
			u         models.RecommendedUser
			lastLogin sql.NullTime
		)
		rec, err := scanRecommendation(rows,
			&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.City, &u.Commune, &u.Region, &u.CreatedAt, &lastLogin,
			&u.Count.Properties, &u.Count.ContractsAsOwner, &u.Count.ContractsAsTenant,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		u.LastLogin = nullTime(lastLogin)
		rec.RecommendedUser = &u
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, brokerID, id string) (*models.LeadRecommendation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recommendationColumns+`
FROM broker_lead_recommendations r
WHERE r.id = $1 AND r.broker_id = $2`, id, brokerID)

	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation: %w", err)
	}
	return rec, nil
}

// stampColumn is the lifecycle timestamp set when entering a status.
func stampColumn(to models.RecommendationStatus) string {
	switch to {
	case models.StatusViewed:
		return "viewed_at"
	case models.StatusContacted:
		return "contacted_at"
	case models.StatusConverted:
		return "converted_at"
	}
	return ""
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, c StatusChange) (*models.LeadRecommendation, error) {
	set := "status = $1, updated_at = $2"
	if col := stampColumn(c.To); col != "" {
		set += fmt.Sprintf(", %s = COALESCE(%s, $2)", col, col)
	}

	row := s.db.QueryRowContext(ctx, `UPDATE broker_lead_recommendations r SET `+set+`
WHERE r.id = $3 AND r.broker_id = $4 AND r.status = $5
RETURNING `+recommendationColumns,
		string(c.To), c.At, c.ID, c.BrokerID, string(c.From))

	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update recommendation status: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE broker_lead_recommendations
		SET status = 'EXPIRED', updated_at = $1
		WHERE status IN ('NEW', 'VIEWED', 'CONTACTED') AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM broker_lead_recommendations
		WHERE status IN ('EXPIRED', 'DISMISSED') AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge recommendations: %w", err)
	}
	return res.RowsAffected()
}
