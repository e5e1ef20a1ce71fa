package authz

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/casetrail/casetrail/pkg/observability"
)

// Resolver computes effective permissions and effective case access.
//
// Permission resolution is cached per user; the cache is a passed-in
// handle, never a package global. Concurrent misses for the same user
// collapse onto one database recomputation. Case access is resolved
// live on every check: grants are few per (user, case) pair and the
// deny override must take effect immediately.
type Resolver struct {
	store   *Store
	cache   PermissionCache
	logger  *observability.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

// NewResolver creates a resolver. Metrics may be nil.
func NewResolver(store *Store, cache PermissionCache, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// ResolvePermissions returns the user's effective permission set: the
// union of direct grants and the permission sets of every group the
// user belongs to. Cache hits are served directly; misses and cache
// failures fall back to a live recomputation.
func (r *Resolver) ResolvePermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	perms, ok, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).
			Warn("permission cache read failed, recomputing")
	}
	if ok {
		if r.metrics != nil {
			r.metrics.PermissionCacheHitsTotal.WithLabelValues("permissions").Inc()
		}
		return perms, nil
	}
	if r.metrics != nil {
		r.metrics.PermissionCacheMissesTotal.WithLabelValues("permissions").Inc()
	}

	return r.recompute(ctx, userID)
}

// recompute performs the database union and refreshes the cache.
// Concurrent calls for the same user share one execution.
func (r *Resolver) recompute(ctx context.Context, userID int64) (PermissionSet, error) {
	v, err, _ := r.group.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		start := time.Now()

		direct, err := r.store.GetUserDirectPermissions(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve direct permissions: %w", err)
		}
		viaGroups, err := r.store.GetUserGroupPermissions(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve group permissions: %w", err)
		}

		perms := direct.Union(viaGroups)

		if err := r.cache.Set(ctx, userID, perms); err != nil {
			// The cache is advisory; a failed write only costs the next read
			r.logger.WithError(err).WithField("user_id", userID).
				Warn("permission cache write failed")
		}

		if r.metrics != nil {
			r.metrics.AuthzRecomputeDuration.WithLabelValues("user").Observe(time.Since(start).Seconds())
			r.metrics.AuthzRecomputeTotal.WithLabelValues("user", "ok").Inc()
		}
		return perms, nil
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.AuthzRecomputeTotal.WithLabelValues("user", "error").Inc()
		}
		return nil, err
	}
	return v.(PermissionSet), nil
}

// RecomputeUser recomputes and re-caches one user's effective
// permission set. Idempotent: recomputing without an underlying grant
// change yields an identical set.
func (r *Resolver) RecomputeUser(ctx context.Context, userID int64) error {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).
			Warn("permission cache invalidation failed")
	}
	// An in-flight recompute started before the grant mutation would
	// re-cache the pre-mutation set; force a fresh execution.
	r.group.Forget(strconv.FormatInt(userID, 10))
	_, err := r.recompute(ctx, userID)
	return err
}

// RecomputeAllUsers recomputes every user's effective permission set,
// one user at a time. The iteration honors context cancellation and is
// deliberately not a single transaction: each user's refresh commits
// independently, so an interrupted run leaves earlier users current and
// later users to be served by the stale-read fallback.
func (r *Resolver) RecomputeAllUsers(ctx context.Context) (int, error) {
	start := time.Now()

	if err := r.cache.InvalidateAll(ctx); err != nil {
		r.logger.WithError(err).Warn("bulk permission cache invalidation failed")
	}

	userIDs, err := r.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users for recompute: %w", err)
	}

	processed := 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		r.group.Forget(strconv.FormatInt(userID, 10))
		if _, err := r.recompute(ctx, userID); err != nil {
			return processed, fmt.Errorf("failed to recompute user %d: %w", userID, err)
		}
		processed++
	}

	if r.metrics != nil {
		r.metrics.AuthzRecomputeDuration.WithLabelValues("all").Observe(time.Since(start).Seconds())
		r.metrics.AuthzRecomputeTotal.WithLabelValues("all", "ok").Inc()
	}

	r.logger.WithFields(map[string]interface{}{
		"users":    processed,
		"duration": time.Since(start).String(),
	}).Info("bulk permission recompute complete")

	return processed, nil
}

// ResolveCaseAccess returns the user's effective access level on a
// case: deny if any applicable grant denies, otherwise the maximum over
// direct, group and organisation grants, or none when no grant applies.
// Organisation ownership of the case plays no part here.
func (r *Resolver) ResolveCaseAccess(ctx context.Context, userID, caseID int64) (AccessLevel, error) {
	levels, err := r.store.caseAccessLevels(ctx, userID, caseID)
	if err != nil {
		return AccessNone, err
	}

	if len(levels) == 0 {
		return AccessNone, nil
	}

	effective := AccessNone
	for _, level := range levels {
		if level == AccessDeny {
			return AccessDeny, nil
		}
		effective = maxAccess(effective, level)
	}
	return effective, nil
}

// AccessibleCaseIDs returns the cases where the user's effective level
// meets the minimum. Used by cross-case search to scope results.
func (r *Resolver) AccessibleCaseIDs(ctx context.Context, userID int64, minimum AccessLevel) ([]int64, error) {
	candidates, err := r.store.GrantedCaseIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []int64
	for _, caseID := range candidates {
		level, err := r.ResolveCaseAccess(ctx, userID, caseID)
		if err != nil {
			return nil, err
		}
		if level.AtLeast(minimum) {
			out = append(out, caseID)
		}
	}
	return out, nil
}

// SweepIntegrity counts dangling grant rows and logs a data-integrity
// warning when any exist. Resolution already treats them as void; the
// sweep makes the inconsistency visible to operators.
func (r *Resolver) SweepIntegrity(ctx context.Context) (DanglingGrantCounts, error) {
	counts, err := r.store.CountDanglingGrants(ctx)
	if err != nil {
		return counts, err
	}

	if r.metrics != nil {
		r.metrics.DanglingGrantsTotal.Set(float64(counts.Total()))
	}

	if counts.Total() > 0 {
		r.logger.WithFields(map[string]interface{}{
			"user_case_access":         counts.UserCaseAccess,
			"group_case_access":        counts.GroupCaseAccess,
			"organisation_case_access": counts.OrgCaseAccess,
			"user_permissions":         counts.UserPermissions,
			"group_permissions":        counts.GroupPerms,
		}).Warn("dangling grants detected")
	}
	return counts, nil
}
