// Package config loads service configuration with the precedence
// defaults, then YAML file, then environment variables under the
// PIPEFLOW prefix.
package config
