package controllers

import (
	"net/http"
	"strconv"

	"dbaccountsync/pkg/logger"
	"dbaccountsync/utils"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	Success bool        `json:"success" example:"true"`
	Message string      `json:"message" example:"Sync completed"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorBody is the body of a failed request.
type ErrorBody struct {
	Error string `json:"error" example:"not found: instance 12"`
}

// PaginationMetadata contains pagination information.
type PaginationMetadata struct {
	Total      int `json:"total" example:"42"`
	Page       int `json:"page" example:"1"`
	PageSize   int `json:"page_size" example:"10"`
	TotalPages int `json:"total_pages" example:"5"`
}

// PaginatedResponse is APIResponse with pagination metadata.
type PaginatedResponse struct {
	Success    bool                `json:"success" example:"true"`
	Message    string              `json:"message"`
	Data       interface{}         `json:"data"`
	Pagination *PaginationMetadata `json:"pagination,omitempty"`
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	utils.JSONResponse(c, status, APIResponse{Success: true, Message: message, Data: data})
}

// pathID reads a numeric path parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		utils.ErrorResponse(c, err)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		logger.Warnf("Invalid %s parameter: %s, using default: %d", name, raw, def)
		return def
	}
	return v
}

// bindJSON binds and validates an optional JSON body. An empty body leaves
// dst at its zero value.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dst); err != nil {
			c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
			return false
		}
	}
	if err := utils.ValidateStruct(dst); err != nil {
		utils.ErrorResponse(c, err)
		return false
	}
	return true
}
