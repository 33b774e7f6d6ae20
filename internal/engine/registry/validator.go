package registry

import (
	"net/url"
	"strings"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

func invalid(message string) error {
	return apperrors.New(apperrors.KindInvalidInput, message)
}

// Validate checks a registration before it is written and normalizes the
// response timeout.
func Validate(reg *models.Registration) error {
	if strings.TrimSpace(reg.Name) == "" {
		return invalid("name is required")
	}

	if reg.TargetURL == "" {
		return invalid("target_url is required")
	}
	u, err := url.Parse(reg.TargetURL)
	if err != nil || u.Host == "" {
		return invalid("invalid target_url format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("target_url must start with http:// or https://")
	}

	switch reg.Kind {
	case models.KindFunctionCall:
		if reg.FunctionName == "" {
			return invalid("function_name is required for function_call registrations")
		}
		reg.EventType = ""
		reg.ResponseTimeoutMs = ClampTimeout(reg.ResponseTimeoutMs)
	case models.KindEventListener:
		if reg.EventType == "" {
			return invalid("event_type is required for event_listener registrations")
		}
		reg.FunctionName = ""
	default:
		return invalid("kind must be 'event_listener' or 'function_call'")
	}

	return nil
}

// ClampTimeout bounds a function-call timeout to [1000, 30000] ms. Zero
// selects the default.
func ClampTimeout(ms int) int {
	switch {
	case ms <= 0:
		return models.DefaultResponseTimeoutMs
	case ms < models.MinResponseTimeoutMs:
		return models.MinResponseTimeoutMs
	case ms > models.MaxResponseTimeoutMs:
		return models.MaxResponseTimeoutMs
	}
	return ms
}
