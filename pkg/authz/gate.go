package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/casetrail/casetrail/pkg/observability"
)

// Action names what the caller is attempting, for denial records
type Action struct {
	Resource   string
	Verb       string
	ResourceID string
}

// DenialRecorder receives every authorization denial. The audit trail
// implements it; the indirection keeps this package free of an audit
// dependency.
type DenialRecorder interface {
	RecordDenial(ctx context.Context, denial *UnauthorizedError)
}

// Gate is the single authorization decision point. Every protected
// operation passes through Check with a typed Requirement.
type Gate struct {
	resolver *Resolver
	recorder DenialRecorder
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewGate creates a gate. recorder and metrics may be nil.
func NewGate(resolver *Resolver, recorder DenialRecorder, logger *observability.Logger, metrics *observability.Metrics) *Gate {
	return &Gate{
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Check decides whether userID satisfies the requirement. A nil return
// means allowed; any denial is an *UnauthorizedError. Internal resolver
// failures degrade to deny: a broken store must never grant access.
func (g *Gate) Check(ctx context.Context, userID int64, act Action, req Requirement) error {
	start := time.Now()

	allowed, err := g.evaluate(ctx, userID, req)
	if err != nil {
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":     userID,
			"requirement": req.Describe(),
		}).Warn("authorization evaluation failed, denying")
		allowed = false
	}

	if g.metrics != nil {
		g.metrics.AuthzDecisionDuration.WithLabelValues(requirementKind(req)).
			Observe(time.Since(start).Seconds())
	}

	if allowed {
		if g.metrics != nil {
			g.metrics.AuthzDecisionsTotal.WithLabelValues(requirementKind(req), "allowed").Inc()
		}
		return nil
	}

	if g.metrics != nil {
		g.metrics.AuthzDecisionsTotal.WithLabelValues(requirementKind(req), "denied").Inc()
	}

	denial := &UnauthorizedError{
		UserID:     userID,
		Resource:   act.Resource,
		Action:     act.Verb,
		ResourceID: act.ResourceID,
	}

	if g.recorder != nil {
		g.recorder.RecordDenial(ctx, denial)
	}

	return denial
}

func (g *Gate) evaluate(ctx context.Context, userID int64, req Requirement) (bool, error) {
	switch r := req.(type) {
	case anyOfRequirement:
		perms, err := g.resolver.ResolvePermissions(ctx, userID)
		if err != nil {
			return false, err
		}
		return perms.HasAny(r.perms...), nil

	case caseAccessRequirement:
		level, err := g.resolver.ResolveCaseAccess(ctx, userID, r.caseID)
		if err != nil {
			return false, err
		}
		// AtLeast is false for deny by construction
		return level.AtLeast(r.minimum), nil

	default:
		return false, fmt.Errorf("unknown requirement type %T", req)
	}
}

func requirementKind(req Requirement) string {
	switch req.(type) {
	case anyOfRequirement:
		return "any_of"
	case caseAccessRequirement:
		return "case_access"
	default:
		return "unknown"
	}
}
