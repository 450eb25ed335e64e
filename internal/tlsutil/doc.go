// Package tlsutil centralizes TLS configuration for the service's
// HTTP clients and Redis connections: TLS 1.2+, AEAD cipher suites
// only.
package tlsutil
