package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/repository"
)

// TestAlertRepository_Create verifies the snapshot insert and defaulting of status.
func TestAlertRepository_Create(t *testing.T) {
	// Arrange
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	policyID := "p-1"
	alert := &models.Alert{
		Title:       "Block Card Numbers",
		PolicyID:    &policyID,
		Description: "Matched policies: Block Card Numbers",
		Severity:    models.SeverityCritical,
		SourceIP:    "10.0.0.7",
		Blocked:     true,
		ActionTaken: "block (policies: Block Card Numbers)",
		DetectedEntities: []models.Finding{
			{EntityType: "CREDIT_CARD", Start: 0, End: 16, Score: 0.99, Value: "4111111111111111"},
		},
	}

	mock.ExpectQuery("INSERT INTO alerts").
		WithArgs(pgxmock.AnyArg(), "Block Card Numbers", &policyID, "Matched policies: Block Card Numbers",
			"critical", "pending", "10.0.0.7", "", "", true, "block (policies: Block Card Numbers)", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(testTime))

	repo := repository.NewAlertRepository(mock)

	// Act
	err = repo.Create(context.Background(), alert)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.AlertStatusPending, alert.Status)
	assert.Equal(t, testTime, alert.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	policyID := "p-1"
	rows := pgxmock.NewRows(alertCols).AddRow(
		"a-1", "PII", &policyID, "desc", "high", "acknowledged", "10.0.0.1", "alice", "laptop-7",
		false, "alert (policies: PII)",
		[]byte(`[{"entity_type":"EMAIL_ADDRESS","start":3,"end":18,"score":0.9,"value":"a@example.com"}]`),
		testTime, (*string)(nil), (*time.Time)(nil),
	)
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id").WithArgs("a-1").WillReturnRows(rows)

	repo := repository.NewAlertRepository(mock)
	alert, err := repo.GetByID(context.Background(), "a-1")

	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, alert.Status)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	require.Len(t, alert.DetectedEntities, 1)
	assert.Equal(t, "EMAIL_ADDRESS", alert.DetectedEntities[0].EntityType)
	assert.Nil(t, alert.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM alerts").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	repo := repository.NewAlertRepository(mock)
	_, err = repo.GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_GetByID_MalformedID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs("abc").
		WillReturnError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"})

	repo := repository.NewAlertRepository(mock)
	alert, err := repo.GetByID(context.Background(), "abc")

	assert.Nil(t, alert)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NotErrorIs(t, err, models.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestAlertRepository_List_Filters verifies placeholder numbering with both filters set.
func TestAlertRepository_List_Filters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM alerts WHERE status = $1 AND severity = $2")).
		WithArgs("pending", "critical").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $3 OFFSET $4")).
		WithArgs("pending", "critical", 20, 40).
		WillReturnRows(pgxmock.NewRows(alertCols))

	repo := repository.NewAlertRepository(mock)
	alerts, total, err := repo.List(context.Background(),
		models.AlertFilter{Status: models.AlertStatusPending, Severity: models.SeverityCritical}, 20, 40)

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_List_NoFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM alerts")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	rows := pgxmock.NewRows(alertCols).AddRow(
		"a-1", "PII", (*string)(nil), "", "low", "pending", "", "", "", false, "alert (policies: PII)",
		[]byte(`[]`), testTime, (*string)(nil), (*time.Time)(nil),
	)
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(rows)

	repo := repository.NewAlertRepository(mock)
	alerts, total, err := repo.List(context.Background(), models.AlertFilter{}, 10, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Nil(t, alerts[0].PolicyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	by := "analyst"
	at := testTime.Add(time.Hour)
	alert := &models.Alert{ID: "a-1", Status: models.AlertStatusResolved, ResolvedBy: &by, ResolvedAt: &at}

	mock.ExpectExec("UPDATE alerts SET status").
		WithArgs("a-1", "resolved", &by, &at, "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := repository.NewAlertRepository(mock)
	err = repo.UpdateStatus(context.Background(), alert, models.AlertStatusPending)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_UpdateStatus_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE alerts SET status").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM alerts").
		WithArgs("a-404").
		WillReturnError(pgx.ErrNoRows)

	repo := repository.NewAlertRepository(mock)
	err = repo.UpdateStatus(context.Background(),
		&models.Alert{ID: "a-404", Status: models.AlertStatusAcknowledged}, models.AlertStatusPending)

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestAlertRepository_UpdateStatus_StaleStatus covers a write whose expected
// status was replaced by another writer after the caller read the alert.
func TestAlertRepository_UpdateStatus_StaleStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alerts SET status = $2, resolved_by = $3, resolved_at = $4 WHERE id = $1 AND status = $5")).
		WithArgs("a-1", "acknowledged", (*string)(nil), (*time.Time)(nil), "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM alerts").
		WithArgs("a-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("resolved"))

	repo := repository.NewAlertRepository(mock)
	err = repo.UpdateStatus(context.Background(),
		&models.Alert{ID: "a-1", Status: models.AlertStatusAcknowledged}, models.AlertStatusPending)

	assert.ErrorIs(t, err, models.ErrStaleStatus)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "resolved")
	assert.NoError(t, mock.ExpectationsWereMet())
}
