// Package utils provides shared utility functions and constants
package utils

// ContextKeyRequestID is the key used to store the request ID in the echo context
const ContextKeyRequestID = "request_id"

// HeaderRequestID carries the request ID in and out of the server
const HeaderRequestID = "X-Request-ID"
