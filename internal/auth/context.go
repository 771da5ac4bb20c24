package auth

import "github.com/gin-gonic/gin"

// Role identifies what kind of account a token belongs to.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleVendor       Role = "vendor"
	RoleBuyerOwner   Role = "buyerOwner"
	RoleBuyerManager Role = "buyerManager"
)

// ParseRole normalizes a wire role value. The main platform still issues
// restaurantOwner/restaurantManager for buyer accounts created before the
// rename, so those map onto the buyer roles.
func ParseRole(raw string) (Role, bool) {
	switch raw {
	case "admin":
		return RoleAdmin, true
	case "vendor":
		return RoleVendor, true
	case "buyerOwner", "restaurantOwner":
		return RoleBuyerOwner, true
	case "buyerManager", "restaurantManager":
		return RoleBuyerManager, true
	default:
		return "", false
	}
}

// RequiresEntity reports whether the role's business capabilities derive
// from a linked verification record.
func (r Role) RequiresEntity() bool {
	return r == RoleVendor || r == RoleBuyerOwner || r == RoleBuyerManager
}

// UserContext is the authenticated caller attached to each request.
// LinkedEntityID is nil for admins.
type UserContext struct {
	UserID         string  `json:"userId"`
	Role           Role    `json:"role"`
	LinkedEntityID *string `json:"linkedEntityId,omitempty"`
}

const contextUserKey = "auth.user"

// FromContext returns the UserContext set by the auth middleware.
func FromContext(c *gin.Context) (UserContext, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return UserContext{}, false
	}
	user, ok := v.(UserContext)
	return user, ok
}

func setUser(c *gin.Context, user UserContext) {
	c.Set(contextUserKey, user)
}
