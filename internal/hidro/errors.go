package hidro

import "fmt"

// ConfigError reports missing client configuration (base URL, credentials).
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("hidro: %s is not configured", e.Field)
}

// AuthError means the upstream rejected the credentials or returned no token.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "hidro: authentication failed: " + e.Reason
}

// UpstreamError is a 4xx/5xx answer from the HidroWeb API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("hidro: upstream status %d: %s", e.StatusCode, e.Body)
}
