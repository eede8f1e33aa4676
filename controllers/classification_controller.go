package controllers

import (
	"fmt"
	"net/http"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/services/classification"
	"dbaccountsync/utils"

	"github.com/gin-gonic/gin"
)

var classificationSrv classification.Service

// SetClassificationService sets the service behind the classification endpoints.
func SetClassificationService(s classification.Service) {
	classificationSrv = s
}

// AutoClassifyRequest scopes an automatic run. No instance means the whole fleet.
type AutoClassifyRequest struct {
	InstanceID uint  `json:"instance_id" example:"3"`
	CreatedBy  *uint `json:"created_by" example:"1"`
}

// AssignRequest attaches a classification to an account by hand.
type AssignRequest struct {
	AccountID  uint   `json:"account_id" validate:"required" example:"42"`
	AssignedBy *uint  `json:"assigned_by" example:"1"`
	Notes      string `json:"notes" validate:"max=500" example:"reviewed by DBA team"`
}

// UnassignRequest names the account to detach.
type UnassignRequest struct {
	AccountID uint `json:"account_id" validate:"required" example:"42"`
}

// RuleMatchesResponse is the live match count of one rule.
type RuleMatchesResponse struct {
	RuleID  uint `json:"rule_id" example:"7"`
	Matches int  `json:"matches" example:"12"`
}

// autoClassify rebuilds assignments from the active rules
// @Summary Run automatic classification
// @Description Deactivates every assignment of the scope and re-derives them from the active rules under a new batch
// @Tags Classification
// @Accept json
// @Produce json
// @Param params body AutoClassifyRequest false "Scope"
// @Success 200 {object} APIResponse{data=models.ClassificationBatch}
// @Failure 409 {object} ErrorBody "Another run holds the lock"
// @Failure 422 {object} ErrorBody "No active rules"
// @Failure 500 {object} APIResponse{data=models.ClassificationBatch} "Batch failed"
// @Router /api/classifications/auto [post]
func autoClassify(c *gin.Context) {
	var params AutoClassifyRequest
	if !bindJSON(c, &params) {
		return
	}

	scope := classification.Scope{
		InstanceID: utils.OptionalID(params.InstanceID),
		BatchType:  models.BatchTypeManual,
		CreatedBy:  params.CreatedBy,
	}
	batch, err := classificationSrv.AutoClassify(c.Request.Context(), scope)
	if err != nil {
		if batch == nil {
			utils.ErrorResponse(c, err)
			return
		}
		logger.Errorf("Classification batch %s failed: %v", batch.BatchID, err)
		utils.JSONResponse(c, utils.StatusFor(err), APIResponse{Success: false, Message: err.Error(), Data: batch})
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Batch %s classified %d accounts", batch.BatchID, batch.TotalMatches), batch)
}

// countRuleMatches counts the live accounts a rule matches
// @Summary Count rule matches
// @Description Evaluates the rule against every live account of its dialect. Assignments are ignored.
// @Tags Classification
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} APIResponse{data=RuleMatchesResponse}
// @Failure 400 {object} ErrorBody "Invalid rule expression"
// @Failure 404 {object} ErrorBody
// @Router /api/classification-rules/{id}/matches [get]
func countRuleMatches(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	n, err := classificationSrv.CountMatches(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	ok(c, http.StatusOK, "Rule evaluated", RuleMatchesResponse{RuleID: id, Matches: n})
}

// assignClassification attaches a classification by hand
// @Summary Assign classification
// @Tags Classification
// @Accept json
// @Produce json
// @Param id path int true "Classification ID"
// @Param params body AssignRequest true "Account"
// @Success 201 {object} APIResponse{data=models.AccountClassificationAssignment}
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Router /api/classifications/{id}/assignments [post]
func assignClassification(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var params AssignRequest
	if !bindJSON(c, &params) {
		return
	}

	a, err := classificationSrv.Assign(c.Request.Context(), params.AccountID, id, params.AssignedBy, params.Notes)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	ok(c, http.StatusCreated, "Classification assigned", a)
}

// unassignClassification detaches a classification
// @Summary Unassign classification
// @Tags Classification
// @Accept json
// @Produce json
// @Param id path int true "Classification ID"
// @Param params body UnassignRequest true "Account"
// @Success 200 {object} APIResponse
// @Failure 404 {object} ErrorBody
// @Router /api/classifications/{id}/assignments [delete]
func unassignClassification(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var params UnassignRequest
	if !bindJSON(c, &params) {
		return
	}
	if err := classificationSrv.Unassign(c.Request.Context(), params.AccountID, id); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	ok(c, http.StatusOK, "Classification unassigned", nil)
}

// RegisterClassificationRoutes registers the classification endpoints.
func RegisterClassificationRoutes(rg *gin.RouterGroup) {
	cls := rg.Group("/classifications")
	{
		cls.POST("/auto", autoClassify)
		cls.POST("/:id/assignments", assignClassification)
		cls.DELETE("/:id/assignments", unassignClassification)
	}
	rg.GET("/classification-rules/:id/matches", countRuleMatches)
}
