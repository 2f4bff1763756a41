package domain

import (
	"errors"
	"fmt"
)

// Reasons a feed item is not turned into an article.
var (
	ErrAlreadyInStore = errors.New("article already in store")
	ErrTooOld         = errors.New("article too old")
	ErrBannedURL      = errors.New("banned url")
	ErrFromTheFuture  = errors.New("article from the future")
)

// LowQualityError carries the reason the quality filter gave.
type LowQualityError struct {
	Reason string
}

func (e *LowQualityError) Error() string {
	return fmt.Sprintf("low quality: %s", e.Reason)
}
