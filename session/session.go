package session

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// Handle identifies a storefront session for the duration of one request
// or one payment confirmation flow. It is built once by the auth middleware
// and passed explicitly to everything that talks to an upstream on the
// user's behalf; nothing in this codebase reads auth state ambiently.
type Handle struct {
	UserID string
	Token  string // raw bearer token, forwarded upstream as-is
}

// Valid reports whether the handle carries enough to act on a user's behalf.
func (h Handle) Valid() bool {
	return h.UserID != "" && h.Token != ""
}

const contextKey = "session_handle"

// Store places a handle on the gin context for downstream handlers.
func Store(c *gin.Context, h Handle) {
	c.Set(contextKey, h)
}

// FromGin retrieves the handle set by the auth middleware.
func FromGin(c *gin.Context) (Handle, error) {
	v, exists := c.Get(contextKey)
	if !exists {
		return Handle{}, errors.New("session handle not found in context")
	}
	h, ok := v.(Handle)
	if !ok || !h.Valid() {
		return Handle{}, errors.New("session handle has invalid type in context")
	}
	return h, nil
}
