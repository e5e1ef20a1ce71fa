package cases

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/evidence"
	"github.com/casetrail/casetrail/pkg/observability"
)

// Service provides case management: cases and their assets, IOCs,
// notes, tasks and evidence, plus org-scoped alerts and cross-case
// search.
type Service interface {
	// Cases
	CreateCase(ctx context.Context, req CreateCaseRequest, actorID *int64) (*Case, error)
	GetCase(ctx context.Context, id int64) (*Case, error)
	ListCases(ctx context.Context, userID int64) ([]*Case, error)
	UpdateCase(ctx context.Context, id int64, req UpdateCaseRequest, actorID *int64) (*Case, error)
	CloseCase(ctx context.Context, id int64, actorID *int64) (*Case, error)
	ReopenCase(ctx context.Context, id int64, actorID *int64) (*Case, error)
	DeleteCase(ctx context.Context, id int64, actorID *int64) error

	// Assets
	AddAsset(ctx context.Context, caseID int64, req CreateAssetRequest, actorID *int64) (*Asset, error)
	ListAssets(ctx context.Context, caseID int64) ([]*Asset, error)
	UpdateAsset(ctx context.Context, caseID, assetID int64, req UpdateAssetRequest, actorID *int64) (*Asset, error)
	DeleteAsset(ctx context.Context, caseID, assetID int64, actorID *int64) error

	// IOCs
	AddIOC(ctx context.Context, caseID int64, req CreateIOCRequest, actorID *int64) (*IOC, error)
	ListIOCs(ctx context.Context, caseID int64) ([]*IOC, error)
	UpdateIOC(ctx context.Context, caseID, iocID int64, req UpdateIOCRequest, actorID *int64) (*IOC, error)
	DeleteIOC(ctx context.Context, caseID, iocID int64, actorID *int64) error

	// Notes
	AddNote(ctx context.Context, caseID int64, req CreateNoteRequest, actorID *int64) (*Note, error)
	ListNotes(ctx context.Context, caseID int64) ([]*Note, error)
	UpdateNote(ctx context.Context, caseID, noteID int64, req UpdateNoteRequest, actorID *int64) (*Note, error)
	DeleteNote(ctx context.Context, caseID, noteID int64, actorID *int64) error

	// Tasks
	AddTask(ctx context.Context, caseID int64, req CreateTaskRequest, actorID *int64) (*Task, error)
	ListTasks(ctx context.Context, caseID int64) ([]*Task, error)
	UpdateTask(ctx context.Context, caseID, taskID int64, req UpdateTaskRequest, actorID *int64) (*Task, error)
	DeleteTask(ctx context.Context, caseID, taskID int64, actorID *int64) error

	// Evidence
	UploadEvidence(ctx context.Context, caseID int64, filename, contentType, description string, content io.Reader, actorID *int64) (*EvidenceItem, error)
	ListEvidence(ctx context.Context, caseID int64) ([]*EvidenceItem, error)
	GetEvidence(ctx context.Context, caseID, evidenceID int64) (*EvidenceItem, error)
	OpenEvidence(ctx context.Context, caseID, evidenceID int64, actorID *int64) (*EvidenceItem, io.ReadCloser, error)
	DeleteEvidence(ctx context.Context, caseID, evidenceID int64, actorID *int64) error

	// Alerts
	CreateAlert(ctx context.Context, req CreateAlertRequest, actorID *int64) (*Alert, error)
	GetAlert(ctx context.Context, id int64) (*Alert, error)
	ListAlerts(ctx context.Context, orgID *int64, status *AlertStatus) ([]*Alert, error)
	UpdateAlert(ctx context.Context, id int64, req UpdateAlertRequest, actorID *int64) (*Alert, error)
	CloseAlert(ctx context.Context, id int64, actorID *int64) (*Alert, error)

	// Search
	Search(ctx context.Context, userID int64, query string, limit int) ([]*SearchResult, error)
}

// PostgresService implements Service with PostgreSQL storage. Case
// access is enforced at the HTTP boundary by the authorization gate;
// the service only consults the resolver where a result set must be
// narrowed to accessible cases (listing, search).
type PostgresService struct {
	db       *sql.DB
	authz    *authz.Store
	resolver *authz.Resolver
	objects  evidence.ObjectStore
	auditLog audit.Logger
	logger   *observability.Logger
}

// NewPostgresService creates a new case service. auditLog may be nil,
// in which case the audit logger is taken from the request context.
func NewPostgresService(db *sql.DB, authzStore *authz.Store, resolver *authz.Resolver, objects evidence.ObjectStore, auditLog audit.Logger, logger *observability.Logger) *PostgresService {
	return &PostgresService{
		db:       db,
		authz:    authzStore,
		resolver: resolver,
		objects:  objects,
		auditLog: auditLog,
		logger:   logger,
	}
}

func (s *PostgresService) audit(ctx context.Context) audit.Logger {
	if s.auditLog != nil {
		return s.auditLog
	}
	return audit.FromContext(ctx)
}

// CreateCase creates a new case. The creator is granted full access so
// a case is never born orphaned.
func (s *PostgresService) CreateCase(ctx context.Context, req CreateCaseRequest, actorID *int64) (*Case, error) {
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

	c := &Case{
		Title:          req.Title,
		Description:    req.Description,
		Status:         CaseStatusOpen,
		Severity:       severity,
		Classification: req.Classification,
		OwnerOrgID:     req.OwnerOrgID,
		Tags:           req.Tags,
		CreatedBy:      actorID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO cases (title, description, status, severity, classification, owner_organisation_id, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`
		err := tx.QueryRowContext(ctx, query,
			c.Title, nullString(c.Description), string(c.Status), string(c.Severity),
			nullString(c.Classification), c.OwnerOrgID, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to create case: %w", err)
		}
		return replaceTags(ctx, tx, c.ID, c.Tags)
	})
	if err != nil {
		return nil, err
	}

	if actorID != nil {
		if err := s.authz.SetUserCaseAccess(ctx, *actorID, c.ID, authz.AccessFullAccess, actorID); err != nil {
			s.logger.WithError(err).WithField("case_id", c.ID).
				Warn("case created but creator grant failed")
		}
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeCaseCreate, actorID, &c.ID,
		audit.ResourceTypeCase, strconv.FormatInt(c.ID, 10), nil,
		fmt.Sprintf("created case %q", c.Title))

	return c, nil
}

// GetCase retrieves a case by ID
func (s *PostgresService) GetCase(ctx context.Context, id int64) (*Case, error) {
	query := `
		SELECT id, title, description, status, severity, classification,
		       owner_organisation_id, created_by, created_at, updated_at, closed_at
		FROM cases
		WHERE id = $1
	`
	c, err := scanCase(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	tags, err := s.caseTags(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Tags = tags
	return c, nil
}

// ListCases returns the cases the user can read, per the effective
// access resolver. An empty accessible set yields an empty list.
func (s *PostgresService) ListCases(ctx context.Context, userID int64) ([]*Case, error) {
	caseIDs, err := s.resolver.AccessibleCaseIDs(ctx, userID, authz.AccessReadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accessible cases: %w", err)
	}
	if len(caseIDs) == 0 {
		return []*Case{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, title, description, status, severity, classification,
		       owner_organisation_id, created_by, created_at, updated_at, closed_at
		FROM cases
		WHERE id IN (%s)
		ORDER BY created_at DESC
	`, placeholders(len(caseIDs)))

	rows, err := s.db.QueryContext(ctx, query, int64Args(caseIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var result []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpdateCase updates case fields
func (s *PostgresService) UpdateCase(ctx context.Context, id int64, req UpdateCaseRequest, actorID *int64) (*Case, error) {
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
	if req.Classification != nil {
		clauses = append(clauses, fmt.Sprintf("classification = $%d", idx))
		args = append(args, nullString(*req.Classification))
		idx++
	}
	if req.OwnerOrgID != nil {
		clauses = append(clauses, fmt.Sprintf("owner_organisation_id = $%d", idx))
		args = append(args, *req.OwnerOrgID)
		idx++
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if len(clauses) > 0 {
			clauses = append(clauses, fmt.Sprintf("updated_at = $%d", idx))
			args = append(args, time.Now().UTC())
			idx++
			args = append(args, id)

			query := fmt.Sprintf("UPDATE cases SET %s WHERE id = $%d", strings.Join(clauses, ", "), idx)
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to update case: %w", err)
			}
			affected, _ := result.RowsAffected()
			if affected == 0 {
				return ErrNotFound
			}
		}
		if req.Tags != nil {
			if err := replaceTags(ctx, tx, id, *req.Tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeCaseUpdate, actorID, &id,
		audit.ResourceTypeCase, strconv.FormatInt(id, 10), nil, "updated case")

	return s.GetCase(ctx, id)
}

// CloseCase marks a case closed
func (s *PostgresService) CloseCase(ctx context.Context, id int64, actorID *int64) (*Case, error) {
	return s.setCaseStatus(ctx, id, CaseStatusClosed, audit.EventTypeCaseClose, "closed case", actorID)
}

// ReopenCase reopens a closed case
func (s *PostgresService) ReopenCase(ctx context.Context, id int64, actorID *int64) (*Case, error) {
	return s.setCaseStatus(ctx, id, CaseStatusOpen, audit.EventTypeCaseReopen, "reopened case", actorID)
}

func (s *PostgresService) setCaseStatus(ctx context.Context, id int64, status CaseStatus, event audit.EventType, message string, actorID *int64) (*Case, error) {
	var closedAt interface{}
	if status == CaseStatusClosed {
		closedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE cases SET status = $1, closed_at = $2, updated_at = $3 WHERE id = $4",
		string(status), closedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update case status: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, ErrNotFound
	}

	_ = s.audit(ctx).LogDataMutation(ctx, event, actorID, &id,
		audit.ResourceTypeCase, strconv.FormatInt(id, 10), nil, message)

	return s.GetCase(ctx, id)
}

// DeleteCase removes a case, its owned records, and its access grants.
// Stored evidence objects are deleted best-effort after the database
// rows are gone.
func (s *PostgresService) DeleteCase(ctx context.Context, id int64, actorID *int64) error {
	storageKeys, err := s.evidenceStorageKeys(ctx, id)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"case_evidence", "case_tasks", "case_notes", "case_iocs", "case_assets", "case_tags",
			"user_case_access", "group_case_access", "organisation_case_access",
		} {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE case_id = $1", table), id); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM cases WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete case: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.objects != nil {
		for _, key := range storageKeys {
			if err := s.objects.Delete(ctx, key); err != nil && err != evidence.ErrObjectNotFound {
				s.logger.WithError(err).WithField("storage_key", key).
					Warn("failed to delete evidence object for removed case")
			}
		}
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeCaseDelete, actorID, &id,
		audit.ResourceTypeCase, strconv.FormatInt(id, 10), nil, "deleted case")

	return nil
}

// caseExists reports whether a case row exists
func (s *PostgresService) caseExists(ctx context.Context, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cases WHERE id = $1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check case: %w", err)
	}
	return nil
}

func (s *PostgresService) caseTags(ctx context.Context, caseID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT tag FROM case_tags WHERE case_id = $1 ORDER BY tag", caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query case tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func replaceTags(ctx context.Context, tx *sql.Tx, caseID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM case_tags WHERE case_id = $1", caseID); err != nil {
		return fmt.Errorf("failed to clear case tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO case_tags (case_id, tag) VALUES ($1, $2)", caseID, tag); err != nil {
			return fmt.Errorf("failed to insert case tag: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (*Case, error) {
	var c Case
	var description, classification sql.NullString
	var ownerOrgID, createdBy sql.NullInt64
	var closedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Title, &description, &c.Status, &c.Severity, &classification,
		&ownerOrgID, &createdBy, &c.CreatedAt, &c.UpdatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}

	c.Description = description.String
	c.Classification = classification.String
	if ownerOrgID.Valid {
		c.OwnerOrgID = &ownerOrgID.Int64
	}
	if createdBy.Valid {
		c.CreatedBy = &createdBy.Int64
	}
	if closedAt.Valid {
		t := closedAt.Time
		c.ClosedAt = &t
	}
	return &c, nil
}

func (s *PostgresService) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// placeholders renders "$1, $2, ..., $n"
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
