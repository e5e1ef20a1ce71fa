package cases

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/casetrail/casetrail/pkg/audit"
)

// CreateAlert creates a new alert
func (s *PostgresService) CreateAlert(ctx context.Context, req CreateAlertRequest, actorID *int64) (*Alert, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	severity := SeverityMedium
	if req.Severity != "" {
		parsed, err := ParseSeverity(req.Severity)
		if err != nil {
			return nil, err
		}
		severity = parsed
	}

	alert := &Alert{
		OrganisationID: req.OrganisationID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       severity,
		Status:         AlertStatusOpen,
		Source:         req.Source,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	query := `
		INSERT INTO alerts (organisation_id, title, description, severity, status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		alert.OrganisationID, alert.Title, nullString(alert.Description),
		string(alert.Severity), string(alert.Status), nullString(alert.Source),
		alert.CreatedAt, alert.UpdatedAt,
	).Scan(&alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeAlertCreate, actorID, nil,
		audit.ResourceTypeAlert, strconv.FormatInt(alert.ID, 10), nil,
		fmt.Sprintf("created alert %q", alert.Title))

	return alert, nil
}

// GetAlert retrieves an alert by ID
func (s *PostgresService) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	query := `
		SELECT id, organisation_id, title, description, severity, status, source, case_id, created_at, updated_at, closed_at
		FROM alerts
		WHERE id = $1
	`
	return scanAlert(s.db.QueryRowContext(ctx, query, id))
}

// ListAlerts returns alerts, optionally filtered by organisation and
// status
func (s *PostgresService) ListAlerts(ctx context.Context, orgID *int64, status *AlertStatus) ([]*Alert, error) {
	var conditions []string
	var args []interface{}
	idx := 1

	if orgID != nil {
		conditions = append(conditions, fmt.Sprintf("organisation_id = $%d", idx))
		args = append(args, *orgID)
		idx++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*status))
		idx++
	}

	query := `
		SELECT id, organisation_id, title, description, severity, status, source, case_id, created_at, updated_at, closed_at
		FROM alerts
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// UpdateAlert updates alert fields. Setting CaseID escalates the alert
// into a case; the target case must exist.
func (s *PostgresService) UpdateAlert(ctx context.Context, id int64, req UpdateAlertRequest, actorID *int64) (*Alert, error) {
	var clauses []string
	var args []interface{}
	idx := 1

	if req.Title != nil {
		clauses = append(clauses, fmt.Sprintf("title = $%d", idx))
		args = append(args, *req.Title)
		idx++
	}
	if req.Description != nil {
		clauses = append(clauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullString(*req.Description))
		idx++
	}
	if req.Severity != nil {
		severity, err := ParseSeverity(*req.Severity)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("severity = $%d", idx))
		args = append(args, string(severity))
		idx++
	}
	if req.CaseID != nil {
		if err := s.caseExists(ctx, *req.CaseID); err != nil {
			return nil, fmt.Errorf("cannot link alert to case %d: %w", *req.CaseID, err)
		}
		clauses = append(clauses, fmt.Sprintf("case_id = $%d", idx))
		args = append(args, *req.CaseID)
		idx++
	}

	if len(clauses) > 0 {
		clauses = append(clauses, fmt.Sprintf("updated_at = $%d", idx))
		args = append(args, time.Now().UTC())
		idx++
		args = append(args, id)

		query := fmt.Sprintf("UPDATE alerts SET %s WHERE id = $%d", strings.Join(clauses, ", "), idx)
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update alert: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return nil, ErrNotFound
		}
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeAlertUpdate, actorID, req.CaseID,
		audit.ResourceTypeAlert, strconv.FormatInt(id, 10), nil, "updated alert")

	return s.GetAlert(ctx, id)
}

// CloseAlert marks an alert closed
func (s *PostgresService) CloseAlert(ctx context.Context, id int64, actorID *int64) (*Alert, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET status = $1, closed_at = $2, updated_at = $3 WHERE id = $4",
		string(AlertStatusClosed), time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to close alert: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, ErrNotFound
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeAlertClose, actorID, nil,
		audit.ResourceTypeAlert, strconv.FormatInt(id, 10), nil, "closed alert")

	return s.GetAlert(ctx, id)
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var orgID, caseID sql.NullInt64
	var description, source sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(&a.ID, &orgID, &a.Title, &description, &a.Severity, &a.Status,
		&source, &caseID, &a.CreatedAt, &a.UpdatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	if orgID.Valid {
		a.OrganisationID = &orgID.Int64
	}
	if caseID.Valid {
		a.CaseID = &caseID.Int64
	}
	a.Description = description.String
	a.Source = source.String
	if closedAt.Valid {
		t := closedAt.Time
		a.ClosedAt = &t
	}
	return &a, nil
}
