package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fpang/muted-image-editor/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API quota has been exceeded.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

// String returns the metrics label for the failure type.
func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// validationModel is a cheap text model; a one-word prompt is enough to
// prove the key works.
const validationModel = "gemini-2.5-flash"

// ValidateAPIKey verifies that the API key is valid by making a minimal API call.
// It returns nil if the key is valid, or a ValidationError with a specific type
// indicating the nature of the failure.
func ValidateAPIKey(ctx context.Context, client *genai.Client) error {
	log.Debug().Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, validationModel, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	if err != nil {
		valErr := classifyError(err)
		metrics.RecordKeyValidation(valErr.Type.String(), elapsed)
		return valErr
	}

	if resp == nil || len(resp.Candidates) == 0 {
		log.Warn().Msg("API key validation returned empty response")
		metrics.RecordKeyValidation("empty_response", elapsed)
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: "API returned empty response",
		}
	}

	metrics.RecordKeyValidation("success", elapsed)
	log.Debug().Dur("duration", elapsed).Msg("API key validation result")
	log.Info().Msg("API key validated successfully")
	return nil
}

// messagePatterns classify errors that carry no API status, in order.
var messagePatterns = []struct {
	typ     ValidationErrorType
	message string
	needles []string
}{
	{ErrTypeInvalidKey, "API key is invalid or has been revoked",
		[]string{"api key not valid", "invalid api key", "api_key_invalid", "permission denied"}},
	{ErrTypeQuotaExceeded, "API quota exceeded or rate limited",
		[]string{"quota", "resource exhausted", "rate limit"}},
	{ErrTypeNetworkError, "Network error, check your internet connection",
		[]string{"connection", "network", "timeout", "dial", "no such host", "unreachable"}},
}

// classifyError maps a validation call failure to a ValidationError.
func classifyError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return classifyAPIError(apiErr)
	}
	var apiErrVal genai.APIError
	if errors.As(err, &apiErrVal) {
		return classifyAPIError(&apiErrVal)
	}

	lower := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				log.Error().Err(err).Str("type", p.typ.String()).Msg("API key validation failed")
				return &ValidationError{Type: p.typ, Message: p.message, Err: err}
			}
		}
	}

	log.Error().Err(err).Msg("Unknown error during API validation")
	return &ValidationError{Type: ErrTypeUnknown, Message: "Failed to validate API key", Err: err}
}

// classifyAPIError maps an HTTP status from the Gemini API.
func classifyAPIError(err *genai.APIError) *ValidationError {
	v := &ValidationError{Type: ErrTypeUnknown, Message: err.Message, Err: err}
	switch {
	case err.Code == 400:
		v.Type, v.Message = ErrTypeInvalidKey, "Bad request, the API key may be malformed"
	case err.Code == 401 || err.Code == 403:
		v.Type, v.Message = ErrTypeInvalidKey, "API key is invalid, expired, or lacks permissions"
	case err.Code == 429:
		v.Type, v.Message = ErrTypeQuotaExceeded, "API rate limit exceeded, try again later"
	case err.Code >= 500 && err.Code <= 504:
		v.Type, v.Message = ErrTypeNetworkError, "Gemini API server error, try again later"
	}

	log.Error().
		Int("code", err.Code).
		Str("status", err.Status).
		Str("type", v.Type.String()).
		Msg("Gemini API rejected the validation call")
	return v
}
