package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/resumekit/entitled/internal/entitlement/domain"
	"github.com/resumekit/entitled/internal/plan"
)

type authorizeRequest struct {
	AccountID string `json:"account_id"`
	Plan      string `json:"plan"`
	Resource  string `json:"resource"`
}

// Authorize answers whether the account may perform one action on the
// resource. For rate resources an allowed response has already recorded the
// consumption; callers must not treat it as a dry run.
func (s *Server) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}

	verdict, err := s.engineSvc.Authorize(c.Request.Context(), entitlementdomain.AuthorizeRequest{
		AccountID: accountID,
		Plan:      plan.Plan(strings.TrimSpace(req.Plan)),
		Resource:  plan.Resource(strings.TrimSpace(req.Resource)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": verdict})
}
