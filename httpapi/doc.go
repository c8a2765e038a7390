// Package httpapi serves the credflow engine over HTTP.
//
// Form endpoints live under /api and speak JSON. A successful flow answers
// 200 with {"redirect": path} when the client should navigate. Failures
// answer {"error": message} with a status derived from the error kind; a
// step-up failure also carries "requires2FA": true. OAuth starts at
// GET /oauth/:provider and returns through GET /api/oauth/:provider.
package httpapi
