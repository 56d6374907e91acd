package response

import (
	"errors"
	"net/http"

	"harmonyclass-api/internal/apperror"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Success returns a success response
func Success(result interface{}) Response {
	return Response{
		Success: true,
		Result:  result,
	}
}

// Error returns an error response
func Error(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

// SuccessJSON sends a success JSON response
func SuccessJSON(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, Success(result))
}

// ErrorJSON sends an error JSON response
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Error(message))
}

// StatusFor maps the shared error types to an HTTP status
func StatusFor(err error) int {
	var (
		verificationErr *apperror.VerificationError
		configErr       *apperror.ConfigurationError
		processorErr    *apperror.ProcessorError
		providerErr     *apperror.ProviderError
		storeErr        *apperror.StoreError
	)

	switch {
	case errors.As(err, &verificationErr):
		return http.StatusBadRequest
	case errors.As(err, &configErr):
		return http.StatusInternalServerError
	case errors.As(err, &processorErr):
		// The processor's own 4xx means the request was bad
		if processorErr.Status >= 400 && processorErr.Status < 500 {
			return processorErr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromErr sends err with the status StatusFor picks
func ErrorFromErr(c *gin.Context, err error) {
	ErrorJSON(c, StatusFor(err), err.Error())
}
