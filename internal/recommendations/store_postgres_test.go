package recommendations

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"rent360-leads/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var recommendationCols = []string{
	"id", "broker_id", "recommended_user_id", "lead_type", "match_score", "reasons", "user_data",
	"status", "expires_at", "viewed_at", "contacted_at", "converted_at", "created_at",
}

func TestPostgresStore_LoadBroker(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("FROM users u").
		WithArgs("broker-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "city", "commune", "region", "active"}).
			AddRow("broker-1", "Ana", "ana@example.com", "+56911111111", "Santiago", "Providencia", "RM", 4))

	b, err := store.LoadBroker(context.Background(), "broker-1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "Santiago", b.City)
	assert.Equal(t, 4, b.ActiveClients)

	mock.ExpectQuery("FROM users u").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	b, err = store.LoadBroker(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, b)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BrokerExists(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("broker-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := store.BrokerExists(context.Background(), "broker-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.BrokerExists(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_OwnerCandidates(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	created := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE u.role = 'OWNER'").
		WithArgs("broker-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "email", "phone", "city", "commune", "region", "created_at",
			"active_properties", "unmanaged", "contracts",
		}).AddRow("o1", "Pedro", "p@example.com", "", "Santiago", "Ñuñoa", "RM", created, 3, 1, 2))

	owners, err := store.OwnerCandidates(context.Background(), "broker-1", 50)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "o1", owners[0].ID)
	assert.Equal(t, 3, owners[0].ActiveProperties)
	assert.Equal(t, 1, owners[0].UnmanagedProperties)
	assert.Equal(t, 2, owners[0].Contracts)
	assert.Equal(t, created, owners[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TenantCandidates(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	since := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE u.role = 'TENANT'").
		WithArgs("broker-1", since, 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "email", "phone", "city", "commune", "region", "created_at",
			"favorites", "visits", "contracts",
		}).AddRow("t1", "Lucía", "l@example.com", "", "Santiago", "", "", since, 2, 0, 0))

	tenants, err := store.TenantCandidates(context.Background(), "broker-1", since, 50)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, 2, tenants[0].RecentFavorites)
	assert.Equal(t, 0, tenants[0].ActiveContracts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CandidateQueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("WHERE u.role = 'OWNER'").WillReturnError(errors.New("relation \"properties\" does not exist"))

	_, err := store.OwnerCandidates(context.Background(), "broker-1", 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner candidates")
}

func TestPostgresStore_ExistingFor(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	got, err := store.ExistingFor(context.Background(), "broker-1", nil)
	require.NoError(t, err)
	assert.Empty(t, got, "no query without candidates")

	mock.ExpectQuery("SELECT recommended_user_id FROM broker_lead_recommendations").
		WithArgs("broker-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"recommended_user_id"}).AddRow("o1"))

	got, err = store.ExistingFor(context.Background(), "broker-1", []string{"o1", "t1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"o1": true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	props := 3

	recs := []models.LeadRecommendation{
		{
			ID: "11111111-1111-1111-1111-111111111111", BrokerID: "broker-1", RecommendedUserID: "o1",
			LeadType: models.LeadTypeOwner, MatchScore: 85, Reasons: []string{"Misma ciudad", "3 propiedades"},
			UserData: models.UserSnapshot{Name: "Pedro", Properties: &props}, Status: models.StatusNew,
			ExpiresAt: now.Add(720 * time.Hour), CreatedAt: now,
		},
		{
			ID: "22222222-2222-2222-2222-222222222222", BrokerID: "broker-1", RecommendedUserID: "t1",
			LeadType: models.LeadTypeTenant, MatchScore: 60, Reasons: []string{"Sin contrato actual"},
			Status: models.StatusNew, ExpiresAt: now.Add(720 * time.Hour), CreatedAt: now,
		},
	}

	args := make([]driver.Value, 0, 20)
	for i := 0; i < 20; i++ {
		args = append(args, sqlmock.AnyArg())
	}

	mock.ExpectQuery("INSERT INTO broker_lead_recommendations").
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("22222222-2222-2222-2222-222222222222"))

	inserted, err := store.Insert(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"22222222-2222-2222-2222-222222222222": true}, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertNothing(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	inserted, err := store.Insert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	viewed := now.Add(-time.Hour)

	cols := append(append([]string{}, recommendationCols...),
		"u_id", "u_name", "u_email", "u_phone", "u_role", "u_city", "u_commune", "u_region",
		"u_created_at", "u_last_login", "properties", "contracts_owner", "contracts_tenant")

	mock.ExpectQuery("ORDER BY r.match_score DESC, r.created_at DESC").
		WithArgs("broker-1", now, "VIEWED", 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"rec-1", "broker-1", "o1", "OWNER_LEAD", 85, `{"Misma ciudad","3 propiedades"}`,
			[]byte(`{"name":"Pedro","email":"p@example.com","phone":"","city":"Santiago","commune":"","properties":3,"contracts":0}`),
			"VIEWED", now.Add(24*time.Hour), viewed, nil, nil, now.Add(-48*time.Hour),
			"o1", "Pedro", "p@example.com", "", "OWNER", "Santiago", "", "RM", now.AddDate(-1, 0, 0), nil, 3, 0, 0,
		))

	recs, err := store.List(context.Background(), ListFilter{BrokerID: "broker-1", Status: "VIEWED", Limit: 10, Now: now})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, models.LeadTypeOwner, r.LeadType)
	assert.Equal(t, []string{"Misma ciudad", "3 propiedades"}, r.Reasons)
	assert.Equal(t, "Pedro", r.UserData.Name)
	require.NotNil(t, r.UserData.Properties)
	assert.Equal(t, 3, *r.UserData.Properties)
	require.NotNil(t, r.ViewedAt)
	assert.Equal(t, viewed, *r.ViewedAt)
	assert.Nil(t, r.ContactedAt)
	require.NotNil(t, r.RecommendedUser)
	assert.Equal(t, "OWNER", r.RecommendedUser.Role)
	assert.Equal(t, 3, r.RecommendedUser.Count.Properties)
	assert.Nil(t, r.RecommendedUser.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListWithoutStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM broker_lead_recommendations r").
		WithArgs("broker-1", now, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	recs, err := store.List(context.Background(), ListFilter{BrokerID: "broker-1", Limit: 10, Now: now})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("WHERE r.id = ").
		WithArgs("rec-x", "broker-1").
		WillReturnRows(sqlmock.NewRows(recommendationCols))

	rec, err := store.Get(context.Background(), "broker-1", "rec-x")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SET status = \\$1, updated_at = \\$2, contacted_at = COALESCE\\(contacted_at, \\$2\\)").
		WithArgs("CONTACTED", at, "rec-1", "broker-1", "VIEWED").
		WillReturnRows(sqlmock.NewRows(recommendationCols).AddRow(
			"rec-1", "broker-1", "t1", "TENANT_LEAD", 60, `{"Sin contrato actual"}`, []byte(`{"name":"Lucía"}`),
			"CONTACTED", at.Add(time.Hour), at.Add(-time.Hour), at, nil, at.Add(-24*time.Hour),
		))

	rec, err := store.UpdateStatus(context.Background(), StatusChange{
		ID: "rec-1", BrokerID: "broker-1", From: models.StatusViewed, To: models.StatusContacted, At: at,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusContacted, rec.Status)
	require.NotNil(t, rec.ContactedAt)
	assert.Equal(t, at, *rec.ContactedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusLostRace(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("UPDATE broker_lead_recommendations r SET status = \\$1, updated_at = \\$2\\s+WHERE").
		WillReturnRows(sqlmock.NewRows(recommendationCols))

	rec, err := store.UpdateStatus(context.Background(), StatusChange{
		ID: "rec-1", BrokerID: "broker-1", From: models.StatusNew, To: models.StatusDismissed, At: time.Now(),
	})
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgresStore_Sweep(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("SET status = 'EXPIRED'").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM broker_lead_recommendations").
		WithArgs(now.AddDate(0, 0, -90)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	expired, err := store.MarkExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), expired)

	purged, err := store.Purge(context.Background(), now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
