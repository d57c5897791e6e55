package config

// mergeConfigs merges override configuration into base. Zero values in
// override leave the base value untouched.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	if override.APIURL != "" {
		result.APIURL = override.APIURL
	}
	if override.WSPath != "" {
		result.WSPath = override.WSPath
	}
	if override.Interactive != nil {
		interactive := *override.Interactive
		result.Interactive = &interactive
	}

	result.Connection = mergeConnection(base.Connection, override.Connection)
	result.Retry = mergeRetry(base.Retry, override.Retry)

	if override.Server.Listen != "" {
		result.Server.Listen = override.Server.Listen
	}
	if override.Server.DataDir != "" {
		result.Server.DataDir = override.Server.DataDir
	}

	// Extensions merge per top-level key.
	if len(base.Extensions) > 0 || len(override.Extensions) > 0 {
		result.Extensions = make(map[string]interface{}, len(base.Extensions)+len(override.Extensions))
		for k, v := range base.Extensions {
			result.Extensions[k] = v
		}
		for k, v := range override.Extensions {
			result.Extensions[k] = v
		}
	}

	return &result
}

func mergeConnection(base, override ConnectionConfig) ConnectionConfig {
	result := base
	if override.HandshakeTimeout != 0 {
		result.HandshakeTimeout = override.HandshakeTimeout
	}
	if override.WriteTimeout != 0 {
		result.WriteTimeout = override.WriteTimeout
	}
	if override.PingInterval != 0 {
		result.PingInterval = override.PingInterval
	}
	if override.RequestTimeout != 0 {
		result.RequestTimeout = override.RequestTimeout
	}
	return result
}

func mergeRetry(base, override RetryConfig) RetryConfig {
	result := base
	if override.InitialInterval != 0 {
		result.InitialInterval = override.InitialInterval
	}
	if override.MaxInterval != 0 {
		result.MaxInterval = override.MaxInterval
	}
	if override.Multiplier != 0 {
		result.Multiplier = override.Multiplier
	}
	if override.RandomizationFactor != 0 {
		result.RandomizationFactor = override.RandomizationFactor
	}
	if override.MaxElapsedTime != 0 {
		result.MaxElapsedTime = override.MaxElapsedTime
	}
	return result
}
