package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFetchFailed        = errors.New("fetch failed")
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrLayoutFixupFailed  = errors.New("layout fix-up failed")
	ErrExecutableNotFound = errors.New("executable not found")
	ErrRegistryIO         = errors.New("installed games registry I/O failed")

	ErrNotAcquirable      = errors.New("game has no download url")
	ErrJobInProgress      = errors.New("acquisition already in progress")
	ErrInvalidTitle       = errors.New("invalid game title")
	ErrNotFound           = errors.New("game not found")
	ErrCheatsheetNotFound = errors.New("cheatsheet not found")
)

type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

type ExtractError struct {
	Tool     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Tool, e.ExitCode)
}

func (e *ExtractError) Unwrap() error { return e.Err }

func (e *ExtractError) Is(target error) bool { return target == ErrExtractionFailed }
