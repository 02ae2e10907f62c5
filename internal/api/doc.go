// Package api hosts the chatbot HTTP server, its middleware and handlers.
// Notable routes:
//   - GET / serves the embedded chat page.
//   - GET /api/health and /health report liveness and readiness.
//   - POST /chat answers a question from the vector index.
//   - GET /quick-answer/{key} returns canned replies.
//   - GET /metrics for Prometheus scraping.
package api
