// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated caller.
// This interface abstracts identity extraction from the web framework,
// allowing handlers and services to access caller information without
// depending on Gin.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() uuid.UUID
	// Role returns the caller's role (setter, closer, manager, admin).
	Role() string
	// TeamID returns the caller's team partition key.
	TeamID() uuid.UUID
	// IsAuthenticated returns true if the caller is authenticated.
	IsAuthenticated() bool
}

// identity is the concrete implementation of Identity.
type identity struct {
	userID        uuid.UUID
	role          string
	teamID        uuid.UUID
	authenticated bool
}

func (i *identity) UserID() uuid.UUID { return i.userID }

func (i *identity) Role() string { return i.role }

func (i *identity) TeamID() uuid.UUID { return i.teamID }

func (i *identity) IsAuthenticated() bool { return i.authenticated }

// NewIdentity constructs an authenticated Identity. Primarily for tests and
// non-HTTP callers of the service layer.
func NewIdentity(userID uuid.UUID, role string, teamID uuid.UUID) Identity {
	return &identity{userID: userID, role: role, teamID: teamID, authenticated: true}
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if caller info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	role := c.GetString(ContextRoleKey)
	teamID := uuid.Nil
	if raw, ok := c.Get(ContextTeamIDKey); ok {
		if parsed, ok := raw.(uuid.UUID); ok {
			teamID = parsed
		}
	}

	return &identity{
		userID:        uid,
		role:          role,
		teamID:        teamID,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the caller is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
