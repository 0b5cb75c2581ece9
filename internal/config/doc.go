// Package config loads, validates, and normalizes docbridge configuration.
package config
