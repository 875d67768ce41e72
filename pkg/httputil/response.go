package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-access/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	TotalPage int `json:"total_pages"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

const requestIDKey = "request_id"

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError maps err to its status. Anything that is not an
// AppError, and every internal AppError, is logged in full and answered
// with a generic message.
func RespondWithError(c *gin.Context, err error) {
	status, message := Classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &Error{
			Code:      status,
			Message:   message,
			RequestID: c.GetString(requestIDKey),
		},
	})
}

// RespondWithStatus aborts with a plain status and message.
func RespondWithStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &Error{
			Code:      status,
			Message:   message,
			RequestID: c.GetString(requestIDKey),
		},
	})
}

// Classify returns the HTTP status and client-safe message for err.
func Classify(err error) (int, string) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "internal server error"
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		return status, "internal server error"
	}
	return status, appErr.Message
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: PaginatedResponse{
			Data: data,
			Pagination: Pagination{
				Page:      page,
				PageSize:  pageSize,
				Total:     total,
				TotalPage: totalPages,
			},
		},
	})
}
