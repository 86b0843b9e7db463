// Package authz enforces role checks over resolved identities.
// Every decision is fail-closed: anything short of an explicit match
// denies access.
package authz

import (
	"github.com/docuport/portal-api/internal/models"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

// RequireRole accepts the identity when its role is in allowed.
// A nil identity is Unauthenticated (no valid session at all); a valid
// identity with the wrong role is Forbidden. The two outcomes stay
// distinguishable so the boundary can map them to 401 and 403, but the
// Forbidden message never says more than "role mismatch".
func RequireRole(identity *models.Identity, allowed ...models.Role) (*models.Identity, error) {
	if identity == nil {
		return nil, apperrors.Unauthenticated("")
	}

	for _, role := range allowed {
		if identity.Role == role {
			return identity, nil
		}
	}
	return nil, apperrors.Forbidden("")
}

// RequireOwnership accepts when the assignment covers the distributor,
// the assignment group is ALL, or the identity is an admin. The
// assignment must be freshly loaded from the resource store; assignment
// data changes independently of session validity and is never cached.
func RequireOwnership(identity *models.Identity, assignment *models.Assignment, distributorID string) bool {
	if identity == nil || assignment == nil {
		return false
	}
	if identity.IsAdmin() {
		return true
	}
	if !identity.IsDistributor() || distributorID == "" {
		return false
	}
	return assignment.Targets(distributorID)
}
