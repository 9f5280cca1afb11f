// Package api defines the request and response types of the AgentGov HTTP
// API.
//
// # API Overview
//
// AgentGov exposes a RESTful governance API:
//   - Fleet dashboard with penalty, fairness, and bias reporting
//   - Per-agent penalty status and archived history
//   - Appeal filing and review
//   - Health monitoring and metrics
//
// # Authentication
//
// When JWT authentication is enabled, endpoints under /api/v1 require an
// Authorization: Bearer token. Health and metrics endpoints stay open.
//
// # Base URL
//
// The default base URL is:
//
//	http://localhost:8080
package api
