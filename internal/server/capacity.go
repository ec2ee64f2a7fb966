package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/resumekit/entitled/internal/plan"
)

type reportCapacityRequest struct {
	Total *int64 `json:"total"`
}

// ReportCapacity records the live total of a durable resource as reported by
// its owning service. The owner remains the enforcement point for creation;
// this mirror only feeds advisory verdicts and summaries.
func (s *Server) ReportCapacity(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("account_id"))
	if accountID == "" {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}

	resource := plan.Resource(strings.TrimSpace(c.Param("resource")))
	kind, err := s.catalog.Kind(resource)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if kind != plan.KindCapacity {
		AbortWithError(c, newValidationError("resource", "not_capacity", "resource is not capacity tracked"))
		return
	}

	var req reportCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Total == nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if *req.Total < 0 {
		AbortWithError(c, newValidationError("total", "negative", "total must be non-negative"))
		return
	}

	if err := s.ledgerSvc.ReportCapacity(c.Request.Context(), accountID, resource, *req.Total); err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.RecordCapacityReport()

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"account_id": accountID,
		"resource":   resource,
		"total":      *req.Total,
	}})
}
