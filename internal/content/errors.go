package content

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against a *FetchError.
var (
	ErrNetwork = errors.New("network failure")
	ErrDecode  = errors.New("decode failure")
)

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindStatus
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned for every failed fetch. A failure is terminal for
// that attempt; nothing is retried.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports status failures as network failures: the backend was reachable
// but did not hand back usable content.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork || e.Kind == KindStatus
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}
