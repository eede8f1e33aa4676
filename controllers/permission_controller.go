package controllers

import (
	"fmt"
	"net/http"

	"dbaccountsync/pkg/errs"
	"dbaccountsync/services/permission"
	"dbaccountsync/utils"

	"github.com/gin-gonic/gin"
)

var permissionSrv permission.Service

// SetPermissionService sets the service behind the permission endpoint.
func SetPermissionService(s permission.Service) {
	permissionSrv = s
}

// getPermissions reads one account's privileges from the live target
// @Summary Get account permissions
// @Description Reads the account from the instance right now and renders its privilege tree. Stored state is not consulted.
// @Tags Instances
// @Produce json
// @Param id path int true "Instance ID"
// @Param username query string true "Account username, e.g. app@%"
// @Success 200 {object} APIResponse{data=permission.View}
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Failure 502 {object} ErrorBody
// @Router /api/instances/{id}/permissions [get]
func getPermissions(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	username := c.Query("username")
	if username == "" {
		utils.ErrorResponse(c, fmt.Errorf("%w: username is required", errs.ErrValidationFailed))
		return
	}

	view, err := permissionSrv.GetPermissions(c.Request.Context(), id, username)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	ok(c, http.StatusOK, "Permissions retrieved successfully", view)
}

// RegisterPermissionRoutes registers the permission endpoint.
func RegisterPermissionRoutes(rg *gin.RouterGroup) {
	rg.GET("/instances/:id/permissions", getPermissions)
}
