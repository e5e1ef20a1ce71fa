package audit

import (
	"context"

	"github.com/casetrail/casetrail/pkg/authz"
)

// DenialRecorder writes authorization denials to the audit trail.
// It implements authz.DenialRecorder.
type DenialRecorder struct {
	logger Logger
}

// NewDenialRecorder creates a recorder backed by the given audit logger
func NewDenialRecorder(logger Logger) *DenialRecorder {
	return &DenialRecorder{logger: logger}
}

// RecordDenial logs a denied authorization decision. Failures to write
// the audit entry are swallowed: the denial itself has already been
// enforced by the gate.
func (r *DenialRecorder) RecordDenial(ctx context.Context, denial *authz.UnauthorizedError) {
	if r.logger == nil || denial == nil {
		return
	}

	uid := denial.UserID
	_ = r.logger.LogAuthorization(ctx,
		EventTypeAuthzAccessDenied,
		&uid,
		ResourceType(denial.Resource),
		denial.ResourceID,
		EventStatusDenied,
		denial.Error(),
	)
}

var _ authz.DenialRecorder = (*DenialRecorder)(nil)
