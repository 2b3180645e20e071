// Package api exposes the review pipeline over HTTP. Handlers decode and
// validate requests, call the services, and translate service error kinds
// into status codes.
package api
