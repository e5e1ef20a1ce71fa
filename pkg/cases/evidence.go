package cases

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/evidence"
)

// UploadEvidence stores the file bytes in the object store and records
// the metadata row. If the metadata insert fails the stored object is
// removed so the two stores never disagree.
func (s *PostgresService) UploadEvidence(ctx context.Context, caseID int64, filename, contentType, description string, content io.Reader, actorID *int64) (*EvidenceItem, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if s.objects == nil {
		return nil, fmt.Errorf("no evidence object store configured")
	}
	if err := s.caseExists(ctx, caseID); err != nil {
		return nil, err
	}

	storageKey := fmt.Sprintf("cases/%d/evidence/%s", caseID, uuid.New().String())
	putResult, err := s.objects.Put(ctx, storageKey, content, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store evidence: %w", err)
	}

	item := &EvidenceItem{
		CaseID:      caseID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   putResult.SizeBytes,
		SHA256:      putResult.SHA256,
		StorageKey:  storageKey,
		Description: description,
		UploadedBy:  actorID,
		UploadedAt:  time.Now().UTC(),
	}

	query := `
		INSERT INTO case_evidence (case_id, filename, content_type, size_bytes, sha256, storage_key, description, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		item.CaseID, item.Filename, nullString(item.ContentType), item.SizeBytes,
		item.SHA256, item.StorageKey, nullString(item.Description),
		item.UploadedBy, item.UploadedAt,
	).Scan(&item.ID)
	if err != nil {
		if delErr := s.objects.Delete(ctx, storageKey); delErr != nil {
			s.logger.WithError(delErr).WithField("storage_key", storageKey).
				Warn("failed to clean up orphaned evidence object")
		}
		return nil, fmt.Errorf("failed to record evidence: %w", err)
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeEvidenceUpload, actorID, &caseID,
		audit.ResourceTypeEvidence, strconv.FormatInt(item.ID, 10), nil,
		fmt.Sprintf("uploaded evidence %q (%d bytes, sha256 %s)", item.Filename, item.SizeBytes, item.SHA256))

	return item, nil
}

// ListEvidence returns the evidence metadata of a case
func (s *PostgresService) ListEvidence(ctx context.Context, caseID int64) ([]*EvidenceItem, error) {
	query := `
		SELECT id, case_id, filename, content_type, size_bytes, sha256, storage_key, description, uploaded_by, uploaded_at
		FROM case_evidence
		WHERE case_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var items []*EvidenceItem
	for rows.Next() {
		item, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetEvidence returns one evidence metadata row
func (s *PostgresService) GetEvidence(ctx context.Context, caseID, evidenceID int64) (*EvidenceItem, error) {
	query := `
		SELECT id, case_id, filename, content_type, size_bytes, sha256, storage_key, description, uploaded_by, uploaded_at
		FROM case_evidence
		WHERE case_id = $1 AND id = $2
	`
	item, err := scanEvidence(s.db.QueryRowContext(ctx, query, caseID, evidenceID))
	if err != nil {
		return nil, err
	}
	return item, nil
}

// OpenEvidence returns the metadata and a reader over the stored
// bytes. Every download is recorded in the audit trail. The caller
// must close the reader.
func (s *PostgresService) OpenEvidence(ctx context.Context, caseID, evidenceID int64, actorID *int64) (*EvidenceItem, io.ReadCloser, error) {
	item, err := s.GetEvidence(ctx, caseID, evidenceID)
	if err != nil {
		return nil, nil, err
	}
	if s.objects == nil {
		return nil, nil, fmt.Errorf("no evidence object store configured")
	}

	reader, err := s.objects.Get(ctx, item.StorageKey)
	if err == evidence.ErrObjectNotFound {
		return nil, nil, fmt.Errorf("evidence object missing for item %d: %w", item.ID, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open evidence: %w", err)
	}

	_ = s.audit(ctx).LogAccess(ctx, audit.EventTypeAccessEvidenceRead, actorID, &caseID,
		audit.ResourceTypeEvidence, strconv.FormatInt(item.ID, 10),
		fmt.Sprintf("downloaded evidence %q", item.Filename))

	return item, reader, nil
}

// DeleteEvidence removes the metadata row and the stored object
func (s *PostgresService) DeleteEvidence(ctx context.Context, caseID, evidenceID int64, actorID *int64) error {
	item, err := s.GetEvidence(ctx, caseID, evidenceID)
	if err != nil {
		return err
	}

	if err := s.deleteCaseChild(ctx, "case_evidence", caseID, evidenceID); err != nil {
		return err
	}

	if s.objects != nil {
		if err := s.objects.Delete(ctx, item.StorageKey); err != nil && err != evidence.ErrObjectNotFound {
			s.logger.WithError(err).WithField("storage_key", item.StorageKey).
				Warn("evidence metadata deleted but object removal failed")
		}
	}

	_ = s.audit(ctx).LogDataMutation(ctx, audit.EventTypeEvidenceDelete, actorID, &caseID,
		audit.ResourceTypeEvidence, strconv.FormatInt(evidenceID, 10), nil,
		fmt.Sprintf("deleted evidence %q", item.Filename))

	return nil
}

func (s *PostgresService) evidenceStorageKeys(ctx context.Context, caseID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT storage_key FROM case_evidence WHERE case_id = $1", caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan storage key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanEvidence(row rowScanner) (*EvidenceItem, error) {
	var item EvidenceItem
	var contentType, description sql.NullString
	var uploadedBy sql.NullInt64

	err := row.Scan(&item.ID, &item.CaseID, &item.Filename, &contentType, &item.SizeBytes,
		&item.SHA256, &item.StorageKey, &description, &uploadedBy, &item.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan evidence: %w", err)
	}

	item.ContentType = contentType.String
	item.Description = description.String
	if uploadedBy.Valid {
		item.UploadedBy = &uploadedBy.Int64
	}
	return &item, nil
}
