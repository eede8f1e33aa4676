package controllers

import (
	"fmt"
	"net/http"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/services/accountsync"
	"dbaccountsync/utils"

	"github.com/gin-gonic/gin"
)

var syncSrv accountsync.Service

// SetSyncService sets the orchestrator behind the sync endpoints.
func SetSyncService(s accountsync.Service) {
	syncSrv = s
}

// BatchSyncRequest selects the instances of a manual batch. Empty means every
// active instance.
type BatchSyncRequest struct {
	InstanceIDs []uint `json:"instance_ids" validate:"omitempty,dive,gt=0" example:"1,2,3"`
	CreatedBy   *uint  `json:"created_by" example:"1"`
}

// syncInstance syncs one instance
// @Summary Sync accounts of one instance
// @Description Runs a manual_single sync of the instance outside any session and increments its sync count
// @Tags Sync
// @Produce json
// @Param id path int true "Instance ID"
// @Success 200 {object} APIResponse{data=accountsync.Outcome}
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Failure 502 {object} APIResponse{data=accountsync.Outcome} "Target unreachable"
// @Router /api/instances/{id}/sync [post]
func syncInstance(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	logger.Debugf("Manual sync requested for instance %d", id)
	out, err := syncSrv.SyncAccounts(c.Request.Context(), id, models.SyncTypeManualSingle, "")
	if err != nil {
		if out == nil {
			utils.ErrorResponse(c, err)
			return
		}
		logger.Errorf("Manual sync of instance %d failed: %v", id, err)
		utils.JSONResponse(c, utils.StatusFor(err), APIResponse{Success: false, Message: err.Error(), Data: out})
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Synced instance %s", out.InstanceName), out)
}

// syncBatch runs a manual batch session
// @Summary Sync a set of instances
// @Description Runs a manual_batch session over the given instances, or over every active instance when none are given. A failing instance never aborts the session.
// @Tags Sync
// @Accept json
// @Produce json
// @Param params body BatchSyncRequest false "Instances to sync"
// @Success 200 {object} APIResponse{data=models.SyncSession}
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Router /api/sync/batch [post]
func syncBatch(c *gin.Context) {
	var params BatchSyncRequest
	if !bindJSON(c, &params) {
		return
	}

	session, err := syncSrv.SyncFleet(c.Request.Context(), params.InstanceIDs, params.CreatedBy)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Session %s %s: %d/%d instances synced",
		session.SessionID, session.Status, session.SuccessfulInstances, session.TotalInstances), session)
}

// getSession returns a session with its instance records
// @Summary Get sync session
// @Tags Sync
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} APIResponse{data=models.SyncSession}
// @Failure 404 {object} ErrorBody
// @Router /api/sync/sessions/{session_id} [get]
func getSession(c *gin.Context) {
	session, err := syncSrv.GetSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	ok(c, http.StatusOK, "Session retrieved successfully", session)
}

// cancelSession cancels a running session
// @Summary Cancel sync session
// @Description Marks a running session cancelled and fails its unfinished instance records
// @Tags Sync
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} APIResponse
// @Failure 400 {object} ErrorBody "Session is not running"
// @Failure 404 {object} ErrorBody
// @Router /api/sync/sessions/{session_id}/cancel [post]
func cancelSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := syncSrv.CancelSession(c.Request.Context(), sessionID); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("Session %s cancelled via API", sessionID)
	ok(c, http.StatusOK, "Session cancelled", nil)
}

// testConnection probes an instance
// @Summary Test instance connection
// @Description Opens a connection, probes the server version and stores it on success
// @Tags Instances
// @Produce json
// @Param id path int true "Instance ID"
// @Success 200 {object} APIResponse{data=connection.TestResult}
// @Failure 404 {object} ErrorBody
// @Router /api/instances/{id}/test-connection [post]
func testConnection(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	res, err := syncSrv.TestConnection(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	msg := "Connection succeeded"
	if !res.Success {
		msg = "Connection failed"
	}
	utils.JSONResponse(c, http.StatusOK, APIResponse{Success: res.Success, Message: msg, Data: res})
}

// RegisterSyncRoutes registers the sync and connection endpoints.
func RegisterSyncRoutes(rg *gin.RouterGroup) {
	instances := rg.Group("/instances")
	{
		instances.POST("/:id/sync", syncInstance)
		instances.POST("/:id/test-connection", testConnection)
	}
	sync := rg.Group("/sync")
	{
		sync.POST("/batch", syncBatch)
		sync.GET("/sessions/:session_id", getSession)
		sync.POST("/sessions/:session_id/cancel", cancelSession)
	}
}
