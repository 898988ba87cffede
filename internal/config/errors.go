package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// Region names are lowercase dash separated words, e.g. "us-west-2". S3-compatible stores often
// use their own names ("garage", "local") so the partition style is not enforced.
var regionPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ConfigurationError reports a setting that cannot be used. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("error validating option %s=%v, %s", e.Field, e.Value, e.Reason)
}

// ValidateRegion checks that region is a well-formed region name.
//
// Parameters:
//   - region: Region name
//
// Returns:
//   - err: [ConfigurationError] if region is malformed
func ValidateRegion(region string) error {
	if !regionPattern.MatchString(region) {
		return &ConfigurationError{Field: "upload.region", Value: region, Reason: "malformed region"}
	}
	return nil
}

// ParseEndpoint parses a custom endpoint. Only absolute http and https URLs with a host are
// accepted since the SDK resolves every request against them.
//
// Parameters:
//   - endpoint: Endpoint URL, e.g. "http://minio:9000"
//
// Returns:
//   - u: Parsed URL
//   - err: [ConfigurationError] if endpoint is malformed
func ParseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConfigurationError{Field: "upload.endpoint", Value: endpoint, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigurationError{
			Field:  "upload.endpoint",
			Value:  endpoint,
			Reason: "scheme must be http or https",
		}
	}
	if u.Host == "" {
		return nil, &ConfigurationError{Field: "upload.endpoint", Value: endpoint, Reason: "missing host"}
	}
	return u, nil
}
