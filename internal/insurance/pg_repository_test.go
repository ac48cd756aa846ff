package insurance

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policyCols = []string{
	"id", "patient_id", "policy_number", "provider", "coverage_percentage", "max_coverage",
	"start_date", "end_date", "status", "created_at", "updated_at",
}

func TestPgListActiveByPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	mock.ExpectQuery(`FROM insurance_policies\s+WHERE patient_id = \$1\s+AND status = 'active'`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(policyCols).
			AddRow("pol-1", "p1", "POL-1", "Acme", 70.0, int64(10000), day(-30), day(300), PolicyActive, today, today).
			AddRow("pol-2", "p1", "POL-2", "Beta", 50.0, int64(5000), day(-30), day(100), PolicyActive, today, today))

	got, err := repo.ListActiveByPatient(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 70.0, got[0].CoveragePercentage)
	assert.Equal(t, int64(5000), got[1].MaxCoverage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgExpireLapsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	mock.ExpectExec(`UPDATE insurance_policies\s+SET status = 'expired'`).
		WithArgs(day(0)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpireLapsed(context.Background(), day(0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreatePolicyDuplicateNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	p := policy("POL-1", 70, 10000, day(-30), day(300))
	mock.ExpectQuery(`INSERT INTO insurance_policies`).
		WithArgs(p.ID, p.PatientID, p.PolicyNumber, p.Provider, p.CoveragePercentage, p.MaxCoverage, p.StartDate, p.EndDate, p.Status).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "insurance_policies_policy_number_key"})

	_, err = repo.CreatePolicy(context.Background(), p)
	assert.ErrorIs(t, err, ErrPolicyExists)
}
