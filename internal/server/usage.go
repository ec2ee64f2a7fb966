package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/resumekit/entitled/internal/plan"
	"github.com/resumekit/entitled/pkg/db/pagination"
)

// UsageSummary reports the account's quota state for display. Read-only:
// it never records consumption.
func (s *Server) UsageSummary(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("account_id"))
	if accountID == "" {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}

	summary, err := s.engineSvc.UsageSummary(c.Request.Context(), accountID, plan.Plan(strings.TrimSpace(c.Query("plan"))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// UsageHistory pages through retained period counters, newest first.
func (s *Server) UsageHistory(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("account_id"))
	if accountID == "" {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	page, err := s.engineSvc.UsageHistory(c.Request.Context(), accountID, query.PageToken, query.PageSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": page})
}
