package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/projectify/live/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, "api_url is not a valid URL").
				WithDetail("api_url", c.APIURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("api_url must use http or https, got %q", u.Scheme)).
				WithDetail("api_url", c.APIURL)
		}
		if u.Host == "" {
			return errors.New(errors.ErrCodeConfigValidation, "api_url must include a host").
				WithDetail("api_url", c.APIURL)
		}
	}

	if c.WSPath != "" && !strings.HasPrefix(c.WSPath, "/") && !strings.Contains(c.WSPath, "://") {
		return errors.New(errors.ErrCodeConfigValidation, "ws_path must be absolute or a full ws:// URL").
			WithDetail("ws_path", c.WSPath)
	}

	if err := validateDurations(map[string]Duration{
		"connection.handshake_timeout": c.Connection.HandshakeTimeout,
		"connection.write_timeout":     c.Connection.WriteTimeout,
		"connection.ping_interval":     c.Connection.PingInterval,
		"connection.request_timeout":   c.Connection.RequestTimeout,
		"retry.initial_interval":       c.Retry.InitialInterval,
		"retry.max_interval":           c.Retry.MaxInterval,
		"retry.max_elapsed_time":       c.Retry.MaxElapsedTime,
	}); err != nil {
		return err
	}

	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "retry.multiplier must be at least 1").
			WithDetail("multiplier", c.Retry.Multiplier)
	}
	if c.Retry.RandomizationFactor < 0 || c.Retry.RandomizationFactor > 1 {
		return errors.New(errors.ErrCodeConfigValidation, "retry.randomization_factor must be between 0 and 1").
			WithDetail("randomization_factor", c.Retry.RandomizationFactor)
	}
	if c.Retry.InitialInterval != 0 && c.Retry.MaxInterval != 0 && c.Retry.InitialInterval > c.Retry.MaxInterval {
		return errors.New(errors.ErrCodeConfigValidation, "retry.initial_interval cannot exceed retry.max_interval")
	}

	return nil
}

func validateDurations(values map[string]Duration) error {
	for name, d := range values {
		if d < 0 {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s cannot be negative", name)).
				WithDetail("field", name).
				WithDetail("value", d.String())
		}
	}
	return nil
}
