package insurance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-scheduling-billing/internal/db"
)

const policyColumns = `id, patient_id, policy_number, provider, coverage_percentage, max_coverage, start_date, end_date, status, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func scanPolicy(row pgx.Row) (*Policy, error) {
	var p Policy
	err := row.Scan(
		&p.ID,
		&p.PatientID,
		&p.PolicyNumber,
		&p.Provider,
		&p.CoveragePercentage,
		&p.MaxCoverage,
		&p.StartDate,
		&p.EndDate,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) CreatePolicy(ctx context.Context, p *Policy) (*Policy, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO insurance_policies (id, patient_id, policy_number, provider, coverage_percentage, max_coverage, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+policyColumns,
		p.ID, p.PatientID, p.PolicyNumber, p.Provider, p.CoveragePercentage, p.MaxCoverage, p.StartDate, p.EndDate, p.Status)

	created, err := scanPolicy(row)
	if err != nil {
		if db.IsUniqueViolation(err, "insurance_policies_policy_number_key") {
			return nil, ErrPolicyExists
		}
		return nil, fmt.Errorf("insert policy: %w", err)
	}
	return created, nil
}

func (r *PgRepository) ListActiveByPatient(ctx context.Context, patientID string) ([]Policy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+policyColumns+`
		FROM insurance_policies
		WHERE patient_id = $1
		  AND status = 'active'
		ORDER BY end_date DESC, policy_number
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var result []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ExpireLapsed(ctx context.Context, today time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE insurance_policies
		SET status = 'expired',
		    updated_at = now()
		WHERE status = 'active'
		  AND end_date < $1
	`, today)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed policies: %w", err)
	}
	return tag.RowsAffected(), nil
}
