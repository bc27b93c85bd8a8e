package models

import (
	"errors"
	"fmt"
)

var (
	// ErrFeedUnavailable covers transport failures, timeouts and non-2xx answers.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrFeedFormat covers HTML error pages and undecodable bodies.
	ErrFeedFormat = errors.New("feed format error")
	// ErrNotFound means the pipeline ran cleanly but nothing survived filtering.
	ErrNotFound = errors.New("no data for this selection")
	// ErrServiceUnavailable is what feed failures collapse into at the caller boundary.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")

	ErrUnknownItem   = errors.New("unknown part")
	ErrUnknownRegion = errors.New("unknown region")
	ErrUnknownGrade  = errors.New("unknown grade")
)

// FeedLogicError is an explicit non-zero error code in a well-formed payload.
type FeedLogicError struct {
	Code string
}

func (e *FeedLogicError) Error() string {
	return fmt.Sprintf("feed logic error: code %s", e.Code)
}

// IsFeedError reports whether err is one of the three upstream failure kinds.
func IsFeedError(err error) bool {
	var le *FeedLogicError
	return errors.Is(err, ErrFeedUnavailable) || errors.Is(err, ErrFeedFormat) || errors.As(err, &le)
}

// IsInvalidSelection reports whether err came from an unknown part, region or grade.
func IsInvalidSelection(err error) bool {
	return errors.Is(err, ErrUnknownItem) || errors.Is(err, ErrUnknownRegion) || errors.Is(err, ErrUnknownGrade)
}
