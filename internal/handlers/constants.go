package handlers

const (
	// maxBodyBytes bounds request bodies; card lists are the largest
	maxBodyBytes = 1 << 20

	ErrInvalidRequest      = "Invalid request"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrTooManyRequests     = "Too many requests, please wait a moment"
	ErrInternalServerError = "Internal server error"
	ErrFeedUnavailable     = "Live updates are unavailable"
)
