// Package tlsutil centralizes hardened TLS settings for the governance API
// server and its outbound clients: TLS 1.2 minimum, AEAD cipher suites
// only.
package tlsutil
