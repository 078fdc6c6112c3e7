package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrMissingLibrary     = fmt.Errorf("no matching library selected")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrFetchFailed        = fmt.Errorf("fetch failed")
	ErrItemFailed         = fmt.Errorf("item update failed")

	// Run control
	ErrAlreadyRunning = fmt.Errorf("sync already running")
	ErrLocked         = fmt.Errorf("another plexsync process holds the lock")
	ErrStopped        = fmt.Errorf("scheduler stopped")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	// Persistence errors
	ErrNotFound = fmt.Errorf("record not found")
)
