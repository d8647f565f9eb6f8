package rbac

import (
	"net/http"

	"campus-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireInstitution enforces the multi-tenant invariant: institution_id must
// exist in context. It does not validate membership; that belongs to the
// access decision engine.
func RequireInstitution() gin.HandlerFunc {
	return func(c *gin.Context) {
		iid, err := auth.InstitutionID(c.Request.Context())
		if err != nil || iid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "institution_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - system_admin bypasses all checks
// - institution isolation is enforced via RequireInstitution (use it in the chain)
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		// system_admin bypasses all
		if IsSystemAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
