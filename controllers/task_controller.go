package controllers

import (
	"fmt"
	"net/http"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/services/task"
	"dbaccountsync/utils"

	"github.com/gin-gonic/gin"
)

var taskExecutor task.Executor

// SetTaskExecutor sets the executor behind the task endpoints.
func SetTaskExecutor(e task.Executor) {
	taskExecutor = e
}

// executeTask runs a task now
// @Summary Execute task
// @Description Runs the task as manual_task over its matching instances under the task deadline. Blocks until the run ends.
// @Tags Tasks
// @Produce json
// @Param id path int true "Task ID"
// @Success 200 {object} APIResponse{data=task.RunInfo}
// @Failure 404 {object} ErrorBody
// @Failure 409 {object} ErrorBody "Task already running"
// @Failure 504 {object} APIResponse{data=task.RunInfo} "Task timed out"
// @Router /api/tasks/{id}/execute [post]
func executeTask(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	run, err := taskExecutor.ExecuteTask(c.Request.Context(), id, models.SyncTypeManualTask)
	if err != nil {
		if run == nil {
			utils.ErrorResponse(c, err)
			return
		}
		logger.Errorf("Task %d run %s ended with %v", id, run.RunID, err)
		utils.JSONResponse(c, utils.StatusFor(err), APIResponse{Success: false, Message: err.Error(), Data: run})
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Task %s finished: %s", run.TaskName, run.Status), run)
}

// listTaskRuns lists recent task runs
// @Summary List task runs
// @Description Recent runs kept in memory, newest first
// @Tags Tasks
// @Produce json
// @Param page query int false "Page number (1-indexed)"
// @Param page_size query int false "Items per page (default 10)"
// @Success 200 {object} PaginatedResponse{data=[]task.RunInfo}
// @Router /api/tasks/runs [get]
func listTaskRuns(c *gin.Context) {
	result := taskExecutor.Monitor().GetRunsPaginated(queryInt(c, "page", 1), queryInt(c, "page_size", 10))
	logger.Debugf("Retrieved %d task runs (page %d of %d)", len(result.Runs), result.Page, result.TotalPages)
	utils.JSONResponse(c, http.StatusOK, PaginatedResponse{
		Success: true,
		Message: "Task runs retrieved successfully",
		Data:    result.Runs,
		Pagination: &PaginationMetadata{
			Total:      result.Total,
			Page:       result.Page,
			PageSize:   result.PageSize,
			TotalPages: result.TotalPages,
		},
	})
}

// getTaskRun returns one run
// @Summary Get task run
// @Tags Tasks
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} APIResponse{data=task.RunInfo}
// @Failure 404 {object} ErrorBody
// @Router /api/tasks/runs/{run_id} [get]
func getTaskRun(c *gin.Context) {
	runID := c.Param("run_id")
	run, found := taskExecutor.Monitor().GetRun(runID)
	if !found {
		c.JSON(http.StatusNotFound, ErrorBody{Error: "run not found: " + runID})
		return
	}
	ok(c, http.StatusOK, "Task run retrieved successfully", run)
}

// RegisterTaskRoutes registers the task endpoints.
func RegisterTaskRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	{
		tasks.POST("/:id/execute", executeTask)
		tasks.GET("/runs", listTaskRuns)
		tasks.GET("/runs/:run_id", getTaskRun)
	}
}
