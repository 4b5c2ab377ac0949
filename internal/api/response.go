package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error."

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// renderError writes err as the error envelope. Anything that is not a
// domain error is logged and reported as a bare 500.
func renderError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.JSON(status, gin.H{"error": body})
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func errorResponse(c *gin.Context, err error) (int, errorBody) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return apperr.HTTPStatus(appErr.Kind), errorBody{
			Code:    string(appErr.Kind),
			Message: appErr.Message(),
			Details: appErr.Fields,
		}
	}

	util.LoggerFromContext(c.Request.Context(), util.GetLogger()).
		Error("Request failed", zap.Error(err))
	return http.StatusInternalServerError, errorBody{
		Code:    "INTERNAL",
		Message: internalErrorMessage,
	}
}

// bindJSON decodes the request body into req and reports decoding and
// binding failures as validation errors. An empty body leaves req zeroed.
func bindJSON(c *gin.Context, req interface{}) error {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: fmt.Sprintf("failed on %s", fe.Tag()),
			})
		}
		return apperr.Validation(fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Validation(apperr.FieldError{Field: typeErr.Field, Message: "must be " + typeErr.Type.String()})
	}
	return apperr.Validation(apperr.FieldError{Field: "body", Message: "malformed JSON"})
}

// validation messages name fields by their JSON keys
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// fieldPath turns "CreateOrderRequest.items[0].quantity" into "items[0].quantity"
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(apperr.FieldError{Field: name, Message: "must be a positive integer"})
	}
	return id, nil
}
