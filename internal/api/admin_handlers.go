package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentra-io/sentra-backend/internal/audit"
	"github.com/sentra-io/sentra-backend/internal/authz"
	"github.com/sentra-io/sentra-backend/internal/keyauth"
)

type createKeyRequest struct {
	Name          string             `json:"name" binding:"required"`
	OrgID         string             `json:"org_id" binding:"required"`
	SubjectID     string             `json:"subject_id"`
	Roles         []string           `json:"roles"`
	Permissions   []authz.Permission `json:"permissions"`
	Plan          string             `json:"plan"`
	ExpiresInDays int                `json:"expires_in_days"`
}

// CreateAPIKey mints a key and returns its derived secret exactly once.
func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}
	perms, err := authz.CompilePermissions(req.Permissions)
	if err != nil {
		abortError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	rec := &keyauth.KeyRecord{
		ID:          keyauth.NewKeyID(),
		OrgID:       req.OrgID,
		SubjectID:   req.SubjectID,
		Name:        req.Name,
		Roles:       req.Roles,
		Permissions: perms,
		Plan:        req.Plan,
		CreatedAt:   time.Now().UTC(),
	}
	if req.ExpiresInDays > 0 {
		exp := rec.CreatedAt.AddDate(0, 0, req.ExpiresInDays)
		rec.ExpiresAt = &exp
	}
	if err := s.keys.Create(c.Request.Context(), rec); err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to create key")
		return
	}
	secret := keyauth.DeriveSecret(s.master, rec.ID)
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"key_id":     rec.ID,
		"secret":     hex.EncodeToString(secret),
		"expires_at": rec.ExpiresAt,
	})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	keyID := c.Param("keyId")
	err := s.keys.Revoke(c.Request.Context(), keyID)
	if errors.Is(err, keyauth.ErrNotFound) {
		abortError(c, http.StatusNotFound, "not_found", "Key not found")
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to revoke key")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// QueryAudit reads back recorded entries through the sink's query
// contract. Write-only sinks report 501.
func (s *Server) QueryAudit(c *gin.Context) {
	f := audit.Filter{
		OrgID: c.Query("org_id"),
		Event: audit.EventType(c.Query("event")),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = t
		}
	}
	entries, err := s.sink.Query(c.Request.Context(), f)
	if errors.Is(err, audit.ErrQueryUnsupported) {
		abortError(c, http.StatusNotImplemented, "unsupported", "Configured audit sink is write-only")
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Audit query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries})
}

type cleanupRequest struct {
	OlderThanDays int `json:"older_than_days" binding:"required,min=1"`
}

func (s *Server) CleanupAudit(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}
	cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays)
	n, err := s.sink.Cleanup(c.Request.Context(), cutoff)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Audit cleanup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}
