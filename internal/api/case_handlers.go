package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-io/sentra-backend/internal/authz"
	"github.com/sentra-io/sentra-backend/internal/database"
)

type createCaseRequest struct {
	Title  string `json:"title" binding:"required"`
	Status string `json:"status"`
}

// caseData exposes the fields conditions and tenant isolation can see.
func caseData(c *database.Case) map[string]any {
	return map[string]any{
		"id":              c.ID.String(),
		"organization_id": c.OrganizationID,
		"owner_id":        c.OwnerID,
		"status":          c.Status,
	}
}

// GetCase performs the object-level check: the route-level pass already
// ran, but conditioned grants need the loaded record.
func (s *Server) GetCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "validation_error", "Invalid case id")
		return
	}
	record, err := s.cases.Get(c.Request.Context(), id)
	if errors.Is(err, database.ErrCaseNotFound) {
		abortError(c, http.StatusNotFound, "not_found", "Case not found")
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to load case")
		return
	}
	if !authorizeObject(c, s.evaluator, "cases/"+id.String(), authz.ActionRead, caseData(record)) {
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) ListCases(c *gin.Context) {
	rc := FromContext(c)
	cases, err := s.cases.List(c.Request.Context(), rc.Principal.OrgID, 100)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to list cases")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cases": cases})
}

func (s *Server) CreateCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}
	rc := FromContext(c)
	if req.Status == "" {
		req.Status = "open"
	}
	now := time.Now().UTC()
	record := &database.Case{
		ID:             uuid.New(),
		OrganizationID: rc.Principal.OrgID,
		OwnerID:        rc.Principal.ID,
		Title:          req.Title,
		Status:         req.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.cases.Create(c.Request.Context(), record); err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to create case")
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) DeleteCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "validation_error", "Invalid case id")
		return
	}
	record, err := s.cases.Get(c.Request.Context(), id)
	if errors.Is(err, database.ErrCaseNotFound) {
		abortError(c, http.StatusNotFound, "not_found", "Case not found")
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to load case")
		return
	}
	if !authorizeObject(c, s.evaluator, "cases/"+id.String(), authz.ActionDelete, caseData(record)) {
		return
	}
	if err := s.cases.Delete(c.Request.Context(), id); err != nil {
		abortError(c, http.StatusInternalServerError, "internal", "Failed to delete case")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status is the public liveness-adjacent route; no credential required.
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}
