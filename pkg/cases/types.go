package cases

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a case or a case-owned record does not exist
var ErrNotFound = errors.New("not found")

// CaseStatus is the lifecycle state of a case
type CaseStatus string

const (
	CaseStatusOpen   CaseStatus = "open"
	CaseStatusClosed CaseStatus = "closed"
)

// Severity classifies the impact of a case or alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity name
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// Case is an investigation. The owning organisation is attribution
// only; it conveys no access to the case.
type Case struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         CaseStatus `json:"status"`
	Severity       Severity   `json:"severity"`
	Classification string     `json:"classification,omitempty"`
	OwnerOrgID     *int64     `json:"owner_organisation_id,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	CreatedBy      *int64     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// Asset is a host, account, or other artifact involved in a case
type Asset struct {
	ID          int64     `json:"id"`
	CaseID      int64     `json:"case_id"`
	Name        string    `json:"name"`
	AssetType   string    `json:"asset_type"`
	Description string    `json:"description,omitempty"`
	Compromised bool      `json:"compromised"`
	AddedBy     *int64    `json:"added_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IOC is an indicator of compromise recorded against a case
type IOC struct {
	ID          int64     `json:"id"`
	CaseID      int64     `json:"case_id"`
	Value       string    `json:"value"`
	IOCType     string    `json:"ioc_type"`
	Description string    `json:"description,omitempty"`
	AddedBy     *int64    `json:"added_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Note is free-form investigation text attached to a case
type Note struct {
	ID        int64     `json:"id"`
	CaseID    int64     `json:"case_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskStatus is the state of a case task
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Task is a unit of investigation work on a case
type Task struct {
	ID          int64      `json:"id"`
	CaseID      int64      `json:"case_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EvidenceItem is the metadata of an uploaded evidence file. The bytes
// themselves live in the object store under StorageKey.
type EvidenceItem struct {
	ID          int64     `json:"id"`
	CaseID      int64     `json:"case_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	StorageKey  string    `json:"-"`
	Description string    `json:"description,omitempty"`
	UploadedBy  *int64    `json:"uploaded_by,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusOpen   AlertStatus = "open"
	AlertStatusClosed AlertStatus = "closed"
)

// Alert is an org-scoped alert, optionally escalated into a case
type Alert struct {
	ID             int64       `json:"id"`
	OrganisationID *int64      `json:"organisation_id,omitempty"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	Source         string      `json:"source,omitempty"`
	CaseID         *int64      `json:"case_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
}

// CreateCaseRequest creates a new case
type CreateCaseRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	Classification string   `json:"classification"`
	OwnerOrgID     *int64   `json:"owner_organisation_id"`
	Tags           []string `json:"tags"`
}

// UpdateCaseRequest updates case fields; nil fields are left unchanged
type UpdateCaseRequest struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	Severity       *string   `json:"severity"`
	Classification *string   `json:"classification"`
	OwnerOrgID     *int64    `json:"owner_organisation_id"`
	Tags           *[]string `json:"tags"`
}

// CreateAssetRequest adds an asset to a case
type CreateAssetRequest struct {
	Name        string `json:"name"`
	AssetType   string `json:"asset_type"`
	Description string `json:"description"`
	Compromised bool   `json:"compromised"`
}

// UpdateAssetRequest updates asset fields; nil fields are left unchanged
type UpdateAssetRequest struct {
	Name        *string `json:"name"`
	AssetType   *string `json:"asset_type"`
	Description *string `json:"description"`
	Compromised *bool   `json:"compromised"`
}

// CreateIOCRequest adds an indicator to a case
type CreateIOCRequest struct {
	Value       string `json:"value"`
	IOCType     string `json:"ioc_type"`
	Description string `json:"description"`
}

// UpdateIOCRequest updates indicator fields; nil fields are left unchanged
type UpdateIOCRequest struct {
	Value       *string `json:"value"`
	IOCType     *string `json:"ioc_type"`
	Description *string `json:"description"`
}

// CreateNoteRequest adds a note to a case
type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteRequest updates note fields; nil fields are left unchanged
type UpdateNoteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// CreateTaskRequest adds a task to a case
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssigneeID  *int64 `json:"assignee_id"`
}

// UpdateTaskRequest updates task fields; nil fields are left unchanged
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	AssigneeID  *int64  `json:"assignee_id"`
}

// CreateAlertRequest creates a new alert
type CreateAlertRequest struct {
	OrganisationID *int64 `json:"organisation_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	Source         string `json:"source"`
}

// UpdateAlertRequest updates alert fields; nil fields are left unchanged
type UpdateAlertRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Severity    *string `json:"severity"`
	CaseID      *int64  `json:"case_id"`
}

// SearchResult is one hit from a cross-case search
type SearchResult struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	CaseID  int64  `json:"case_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}
