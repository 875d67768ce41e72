package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/care-access/pkg/httputil"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationConfig represents validation middleware configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomErrorMessages: map[string]string{
			"required": "field is required",
			"max":      "value is too long",
			"oneof":    "value is not allowed",
			"uuid":     "must be a UUID",
		},
	}
}

// Validation reports binding validation failures as 400 with one entry per
// field. Field names are taken from json tags.
func Validation(config ValidationConfig) gin.HandlerFunc {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		var validationErrors []ValidationError
		for _, ginErr := range c.Errors {
			var errs validator.ValidationErrors
			if !errors.As(ginErr.Err, &errs) {
				continue
			}
			for _, e := range errs {
				msg := config.CustomErrorMessages[e.Tag()]
				if msg == "" {
					msg = "failed " + e.Tag() + " validation"
				}
				validationErrors = append(validationErrors, ValidationError{
					Field:   e.Field(),
					Message: msg,
				})
			}
		}

		if len(validationErrors) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, httputil.Response{
				Success: false,
				Data:    gin.H{"errors": validationErrors},
				Error:   &httputil.Error{Code: http.StatusBadRequest, Message: "validation failed", RequestID: c.GetString(ContextRequestID)},
			})
		}
	}
}
