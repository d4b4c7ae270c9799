package extract

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when the recognition capability has no
// credential configured. It is an operator problem, not a runtime failure.
var ErrMissingCredential = errors.New("recognition credential not configured")

// ErrInvalidImage is returned when an image payload is not valid base64.
var ErrInvalidImage = errors.New("invalid image payload")

// FetchError reports a failure to retrieve a web page.
type FetchError struct {
	URL string
	// StatusCode is the upstream HTTP status, or 0 when no response arrived.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: upstream returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RecognitionError reports a failed call to the recognition capability.
type RecognitionError struct {
	SessionID string
	Err       error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition session %s: %v", e.SessionID, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
