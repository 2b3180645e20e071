// Package gemini implements generation.Generator on Google's Gemini API.
//
// The adapter sends the review system instruction and user prompt as a single
// GenerateContent call and returns the candidate text. It performs no retries
// of its own: the review pipeline owns the deadline and a failed call is
// terminal for that request. API failures are reported as
// *generation.UpstreamError with the HTTP status and message preserved.
package gemini
