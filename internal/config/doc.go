// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A .env file next to the config file, if present, is loaded first and never
// overrides variables already set. REALTIME_BASE_URL and REALTIME_MODE override
// the realtime section after parsing.
package config
