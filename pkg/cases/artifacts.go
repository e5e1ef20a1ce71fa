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

// AddAsset adds an asset to a case
func (s *PostgresService) AddAsset(ctx context.Context, caseID int64, req CreateAssetRequest, actorID *int64) (*Asset, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("asset name is required")
	}
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	asset := &Asset{
		CaseID:      caseID,
		Name:        req.Name,
		AssetType:   req.AssetType,
		Description: req.Description,
		Compromised: req.Compromised,
		AddedBy:     actorID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO case_assets (case_id, name, asset_type, description, compromised, added_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		asset.CaseID, asset.Name, asset.AssetType, nullString(asset.Description),
		asset.Compromised, asset.AddedBy, asset.CreatedAt, asset.UpdatedAt,
	).Scan(&asset.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add asset: %w", err)
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeAssetCreate, actorID, &caseID,
		audit.ResourceTypeAsset, strconv.FormatInt(asset.ID, 10), nil,
		fmt.Sprintf("added asset %q", asset.Name))

	return asset, nil
}

// ListAssets returns the assets of a case
func (s *PostgresService) ListAssets(ctx context.Context, caseID int64) ([]*Asset, error) {
	query := `
		SELECT id, case_id, name, asset_type, description, compromised, added_by, created_at, updated_at
		FROM case_assets
		WHERE case_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		var a Asset
		var description sql.NullString
		var addedBy sql.NullInt64
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Name, &a.AssetType, &description,
			&a.Compromised, &addedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		a.Description = description.String
		if addedBy.Valid {
			a.AddedBy = &addedBy.Int64
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

// UpdateAsset updates asset fields
func (s *PostgresService) UpdateAsset(ctx context.Context, caseID, assetID int64, req UpdateAssetRequest, actorID *int64) (*Asset, error) {
	var clauses []string
	var args []interface{}
	idx := 1

	if req.Name != nil {
		clauses = append(clauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *req.Name)
		idx++
	}
	if req.AssetType != nil {
		clauses = append(clauses, fmt.Sprintf("asset_type = $%d", idx))
		args = append(args, *req.AssetType)
		idx++
	}
	if req.Description != nil {
		clauses = append(clauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullString(*req.Description))
		idx++
	}
	if req.Compromised != nil {
		clauses = append(clauses, fmt.Sprintf("compromised = $%d", idx))
		args = append(args, *req.Compromised)
		idx++
	}

	if err := s.updateCaseChild(ctx, "case_assets", caseID, assetID, clauses, args, idx); err != nil {
		return nil, err
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeAssetUpdate, actorID, &caseID,
		audit.ResourceTypeAsset, strconv.FormatInt(assetID, 10), nil, "updated asset")

	return s.getAsset(ctx, caseID, assetID)
}

// DeleteAsset removes an asset from a case
func (s *PostgresService) DeleteAsset(ctx context.Context, caseID, assetID int64, actorID *int64) error {
	if err := s.deleteCaseChild(ctx, "case_assets", caseID, assetID); err != nil {
		return err
	}
	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeAssetDelete, actorID, &caseID,
		audit.ResourceTypeAsset, strconv.FormatInt(assetID, 10), nil, "deleted asset")
	return nil
}

func (s *PostgresService) getAsset(ctx context.Context, caseID, assetID int64) (*Asset, error) {
	query := `
		SELECT id, case_id, name, asset_type, description, compromised, added_by, created_at, updated_at
		FROM case_assets
		WHERE case_id = $1 AND id = $2
	`
	var a Asset
	var description sql.NullString
	var addedBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, caseID, assetID).Scan(
		&a.ID, &a.CaseID, &a.Name, &a.AssetType, &description,
		&a.Compromised, &addedBy, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	a.Description = description.String
	if addedBy.Valid {
		a.AddedBy = &addedBy.Int64
	}
	return &a, nil
}

// AddIOC records an indicator of compromise against a case
func (s *PostgresService) AddIOC(ctx context.Context, caseID int64, req CreateIOCRequest, actorID *int64) (*IOC, error) {
	if req.Value == "" {
		return nil, fmt.Errorf("ioc value is required")
	}
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	ioc := &IOC{
		CaseID:      caseID,
		Value:       req.Value,
		IOCType:     req.IOCType,
		Description: req.Description,
		AddedBy:     actorID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO case_iocs (case_id, value, ioc_type, description, added_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		ioc.CaseID, ioc.Value, ioc.IOCType, nullString(ioc.Description),
		ioc.AddedBy, ioc.CreatedAt, ioc.UpdatedAt,
	).Scan(&ioc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add ioc: %w", err)
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeIOCCreate, actorID, &caseID,
		audit.ResourceTypeIOC, strconv.FormatInt(ioc.ID, 10), nil,
		fmt.Sprintf("added %s indicator", ioc.IOCType))

	return ioc, nil
}

// ListIOCs returns the indicators of a case
func (s *PostgresService) ListIOCs(ctx context.Context, caseID int64) ([]*IOC, error) {
	query := `
		SELECT id, case_id, value, ioc_type, description, added_by, created_at, updated_at
		FROM case_iocs
		WHERE case_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list iocs: %w", err)
	}
	defer rows.Close()

	var iocs []*IOC
	for rows.Next() {
		var ioc IOC
		var description sql.NullString
		var addedBy sql.NullInt64
		if err := rows.Scan(&ioc.ID, &ioc.CaseID, &ioc.Value, &ioc.IOCType, &description,
			&addedBy, &ioc.CreatedAt, &ioc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ioc: %w", err)
		}
		ioc.Description = description.String
		if addedBy.Valid {
			ioc.AddedBy = &addedBy.Int64
		}
		iocs = append(iocs, &ioc)
	}
	return iocs, rows.Err()
}

// UpdateIOC updates indicator fields
func (s *PostgresService) UpdateIOC(ctx context.Context, caseID, iocID int64, req UpdateIOCRequest, actorID *int64) (*IOC, error) {
	var clauses []string
	var args []interface{}
	idx := 1

	if req.Value != nil {
		clauses = append(clauses, fmt.Sprintf("value = $%d", idx))
		args = append(args, *req.Value)
		idx++
	}
	if req.IOCType != nil {
		clauses = append(clauses, fmt.Sprintf("ioc_type = $%d", idx))
		args = append(args, *req.IOCType)
		idx++
	}
	if req.Description != nil {
		clauses = append(clauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullString(*req.Description))
		idx++
	}

	if err := s.updateCaseChild(ctx, "case_iocs", caseID, iocID, clauses, args, idx); err != nil {
		return nil, err
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeIOCUpdate, actorID, &caseID,
		audit.ResourceTypeIOC, strconv.FormatInt(iocID, 10), nil, "updated ioc")

	return s.getIOC(ctx, caseID, iocID)
}

// DeleteIOC removes an indicator from a case
func (s *PostgresService) DeleteIOC(ctx context.Context, caseID, iocID int64, actorID *int64) error {
	if err := s.deleteCaseChild(ctx, "case_iocs", caseID, iocID); err != nil {
		return err
	}
	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeIOCDelete, actorID, &caseID,
		audit.ResourceTypeIOC, strconv.FormatInt(iocID, 10), nil, "deleted ioc")
	return nil
}

func (s *PostgresService) getIOC(ctx context.Context, caseID, iocID int64) (*IOC, error) {
	query := `
		SELECT id, case_id, value, ioc_type, description, added_by, created_at, updated_at
		FROM case_iocs
		WHERE case_id = $1 AND id = $2
	`
	var ioc IOC
	var description sql.NullString
	var addedBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, caseID, iocID).Scan(
		&ioc.ID, &ioc.CaseID, &ioc.Value, &ioc.IOCType, &description,
		&addedBy, &ioc.CreatedAt, &ioc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ioc: %w", err)
	}
	ioc.Description = description.String
	if addedBy.Valid {
		ioc.AddedBy = &addedBy.Int64
	}
	return &ioc, nil
}

// AddNote adds a note to a case
func (s *PostgresService) AddNote(ctx context.Context, caseID int64, req CreateNoteRequest, actorID *int64) (*Note, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("note title is required")
	}
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	note := &Note{
		CaseID:    caseID,
		Title:     req.Title,
		Content:   req.Content,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO case_notes (case_id, title, content, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		note.CaseID, note.Title, nullString(note.Content),
		note.CreatedBy, note.CreatedAt, note.UpdatedAt,
	).Scan(&note.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeNoteCreate, actorID, &caseID,
		audit.ResourceTypeNote, strconv.FormatInt(note.ID, 10), nil,
		fmt.Sprintf("added note %q", note.Title))

	return note, nil
}

// ListNotes returns the notes of a case
func (s *PostgresService) ListNotes(ctx context.Context, caseID int64) ([]*Note, error) {
	query := `
		SELECT id, case_id, title, content, created_by, created_at, updated_at
		FROM case_notes
		WHERE case_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var n Note
		var content sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&n.ID, &n.CaseID, &n.Title, &content,
			&createdBy, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.Content = content.String
		if createdBy.Valid {
			n.CreatedBy = &createdBy.Int64
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

// UpdateNote updates note fields
func (s *PostgresService) UpdateNote(ctx context.Context, caseID, noteID int64, req UpdateNoteRequest, actorID *int64) (*Note, error) {
	var clauses []string
	var args []interface{}
	idx := 1

	if req.Title != nil {
		clauses = append(clauses, fmt.Sprintf("title = $%d", idx))
		args = append(args, *req.Title)
		idx++
	}
	if req.Content != nil {
		clauses = append(clauses, fmt.Sprintf("content = $%d", idx))
		args = append(args, nullString(*req.Content))
		idx++
	}

	if err := s.updateCaseChild(ctx, "case_notes", caseID, noteID, clauses, args, idx); err != nil {
		return nil, err
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeNoteUpdate, actorID, &caseID,
		audit.ResourceTypeNote, strconv.FormatInt(noteID, 10), nil, "updated note")

	return s.getNote(ctx, caseID, noteID)
}

// DeleteNote removes a note from a case
func (s *PostgresService) DeleteNote(ctx context.Context, caseID, noteID int64, actorID *int64) error {
	if err := s.deleteCaseChild(ctx, "case_notes", caseID, noteID); err != nil {
		return err
	}
	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeNoteDelete, actorID, &caseID,
		audit.ResourceTypeNote, strconv.FormatInt(noteID, 10), nil, "deleted note")
	return nil
}

func (s *PostgresService) getNote(ctx context.Context, caseID, noteID int64) (*Note, error) {
	query := `
		SELECT id, case_id, title, content, created_by, created_at, updated_at
		FROM case_notes
		WHERE case_id = $1 AND id = $2
	`
	var n Note
	var content sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, caseID, noteID).Scan(
		&n.ID, &n.CaseID, &n.Title, &content, &createdBy, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	n.Content = content.String
	if createdBy.Valid {
		n.CreatedBy = &createdBy.Int64
	}
	return &n, nil
}

// AddTask adds a task to a case
func (s *PostgresService) AddTask(ctx context.Context, caseID int64, req CreateTaskRequest, actorID *int64) (*Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	task := &Task{
		CaseID:      caseID,
		Title:       req.Title,
		Description: req.Description,
		Status:      TaskStatusTodo,
		AssigneeID:  req.AssigneeID,
		CreatedBy:   actorID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO case_tasks (case_id, title, description, status, assignee_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		task.CaseID, task.Title, nullString(task.Description), string(task.Status),
		task.AssigneeID, task.CreatedBy, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add task: %w", err)
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeTaskCreate, actorID, &caseID,
		audit.ResourceTypeTask, strconv.FormatInt(task.ID, 10), nil,
		fmt.Sprintf("added task %q", task.Title))

	return task, nil
}

// ListTasks returns the tasks of a case
func (s *PostgresService) ListTasks(ctx context.Context, caseID int64) ([]*Task, error) {
	query := `
		SELECT id, case_id, title, description, status, assignee_id, created_by, created_at, updated_at
		FROM case_tasks
		WHERE case_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var t Task
		var description sql.NullString
		var assigneeID, createdBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.CaseID, &t.Title, &description, &t.Status,
			&assigneeID, &createdBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Description = description.String
		if assigneeID.Valid {
			t.AssigneeID = &assigneeID.Int64
		}
		if createdBy.Valid {
			t.CreatedBy = &createdBy.Int64
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// UpdateTask updates task fields
func (s *PostgresService) UpdateTask(ctx context.Context, caseID, taskID int64, req UpdateTaskRequest, actorID *int64) (*Task, error) {
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
	if req.Status != nil {
		status := TaskStatus(*req.Status)
		switch status {
		case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		default:
			return nil, fmt.Errorf("unknown task status: %q", *req.Status)
		}
		clauses = append(clauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(status))
		idx++
	}
	if req.AssigneeID != nil {
		clauses = append(clauses, fmt.Sprintf("assignee_id = $%d", idx))
		args = append(args, *req.AssigneeID)
		idx++
	}

	if err := s.updateCaseChild(ctx, "case_tasks", caseID, taskID, clauses, args, idx); err != nil {
		return nil, err
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeTaskUpdate, actorID, &caseID,
		audit.ResourceTypeTask, strconv.FormatInt(taskID, 10), nil, "updated task")

	return s.getTask(ctx, caseID, taskID)
}

// DeleteTask removes a task from a case
func (s *PostgresService) DeleteTask(ctx context.Context, caseID, taskID int64, actorID *int64) error {
	if err := s.deleteCaseChild(ctx, "case_tasks", caseID, taskID); err != nil {
		return err
	}
	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeTaskDelete, actorID, &caseID,
		audit.ResourceTypeTask, strconv.FormatInt(taskID, 10), nil, "deleted task")
	return nil
}

func (s *PostgresService) getTask(ctx context.Context, caseID, taskID int64) (*Task, error) {
	query := `
		SELECT id, case_id, title, description, status, assignee_id, created_by, created_at, updated_at
		FROM case_tasks
		WHERE case_id = $1 AND id = $2
	`
	var t Task
	var description sql.NullString
	var assigneeID, createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, caseID, taskID).Scan(
		&t.ID, &t.CaseID, &t.Title, &description, &t.Status,
		&assigneeID, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	t.Description = description.String
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.Int64
	}
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	return &t, nil
}

// updateCaseChild applies a dynamic SET clause update to a case-owned
// row, keyed by both case id and row id so a row can never be modified
// through the wrong case.
func (s *PostgresService) updateCaseChild(ctx context.Context, table string, caseID, rowID int64, clauses []string, args []interface{}, idx int) error {
	if len(clauses) == 0 {
		return s.childExists(ctx, table, caseID, rowID)
	}

	clauses = append(clauses, fmt.Sprintf("updated_at = $%d", idx))
	args = append(args, time.Now().UTC())
	idx++

	query := fmt.Sprintf("UPDATE %s SET %s WHERE case_id = $%d AND id = $%d",
		table, strings.Join(clauses, ", "), idx, idx+1)
	args = append(args, caseID, rowID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresService) deleteCaseChild(ctx context.Context, table string, caseID, rowID int64) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE case_id = $1 AND id = $2", table), caseID, rowID)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresService) childExists(ctx context.Context, table string, caseID, rowID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE case_id = $1 AND id = $2", table), caseID, rowID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, err)
	}
	return nil
}
