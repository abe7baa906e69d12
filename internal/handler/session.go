package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/auth"
)

// SignInConfig is the public part of the identity provider setup the login view needs.
type SignInConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key,omitempty"`
	AuthDomain string `json:"auth_domain,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
}

// WithSignIn sets what AuthConfig reports.
func (h *Handler) WithSignIn(cfg SignInConfig) *Handler {
	h.signIn = cfg
	return h
}

// AuthConfig tells the login view which sign-in flow to run.
func (h *Handler) AuthConfig(c *gin.Context) {
	cfg := h.signIn
	if cfg.Provider == "" {
		cfg.Provider = "dev"
	}
	c.JSON(http.StatusOK, cfg)
}

type loginRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// Login exchanges a provider credential for a session token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.gate.SignIn(c.Request.Context(), req.Credential)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAuthFailure):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in failed"})
		return
	case errors.Is(err, auth.ErrUnregisteredUser):
		c.JSON(http.StatusForbidden, gin.H{"error": "not registered"})
		return
	case errors.Is(err, auth.ErrAmbiguousRoster):
		c.JSON(http.StatusConflict, gin.H{"error": "email is registered more than once, contact the administrator"})
		return
	case errors.Is(err, auth.ErrRosterUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "roster unavailable"})
		return
	default:
		h.log.Error("sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"student":    sess.Identity,
	})
}

// Logout clears the caller's session.
func (h *Handler) Logout(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if err := h.gate.SignOut(c.Request.Context(), claims.ID); err != nil {
		h.log.Error("sign-out failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

// Me returns the cached identity of the caller.
func (h *Handler) Me(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	c.JSON(http.StatusOK, gin.H{"student": id})
}
