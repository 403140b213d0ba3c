package tuya

import "codeberg.org/mutker/tuya-exporter/internal/errors"

const (
	// Fetch failure classification
	ErrAuth              = errors.ErrorCode("tuya_auth_failed")
	ErrNetwork           = errors.ErrorCode("tuya_network_failed")
	ErrDeviceNotFound    = errors.ErrorCode("tuya_device_not_found")
	ErrMalformedResponse = errors.ErrorCode("tuya_malformed_response")
	ErrRateLimited       = errors.ErrorCode("tuya_rate_limited")

	// Client errors
	ErrInvalidConfig = errors.ErrorCode("tuya_invalid_config")
	ErrTokenRequest  = errors.ErrorCode("tuya_token_request_failed")
)

// Tuya business result codes that map onto the failure classes above
var (
	authCodes = map[int]bool{
		1001: true, // secret invalid
		1004: true, // signature invalid
		1010: true, // token invalid
		1011: true, // token expired
		1106: true, // permission denied
	}
	notFoundCodes = map[int]bool{
		1106001: true, // device id not found
		2007:    true, // device removed
	}
)

// classifyStatus maps an HTTP status code to a failure class
func classifyStatus(status int) errors.ErrorCode {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 404:
		return ErrDeviceNotFound
	case status == 429:
		return ErrRateLimited
	default:
		return ErrNetwork
	}
}

// classifyBusinessCode maps a Tuya result code to a failure class
func classifyBusinessCode(code int) errors.ErrorCode {
	switch {
	case authCodes[code]:
		return ErrAuth
	case notFoundCodes[code]:
		return ErrDeviceNotFound
	default:
		return ErrMalformedResponse
	}
}

// IsFetchError reports whether code is one of the per-device fetch failure
// classes recorded in the store.
func IsFetchError(code errors.ErrorCode) bool {
	switch code {
	case ErrAuth, ErrNetwork, ErrDeviceNotFound, ErrMalformedResponse, ErrRateLimited:
		return true
	default:
		return false
	}
}
