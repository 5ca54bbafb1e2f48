package tree

import "errors"

// Fallback texts written in place of content that could not be loaded.
const (
	MsgCheckURL        = "Something went wrong... Check your URL?"
	MsgCheckConnection = "Something went wrong... Check your internet connection?"
	MsgNoTopics        = "Huh? No topics found?"
)

var (
	ErrClosed            = errors.New("tree session closed")
	ErrNotExpanded       = errors.New("chapter not expanded")
	ErrUnknownNode       = errors.New("unknown node")
	ErrParentNotRendered = errors.New("parent topic not rendered")
)

// MissingParamError reports a path parameter absent from the request.
type MissingParamError struct {
	Param string
}

func (e *MissingParamError) Error() string {
	return "missing path parameter: " + e.Param
}

// Message is the inline text shown for the missing parameter.
func (e *MissingParamError) Message() string {
	return "Hmmm... we couldn't find that " + e.Param + "?"
}

// checkPath returns one MissingParamError per absent parameter in params.
func checkPath(missing []string, params ...string) []*MissingParamError {
	var errs []*MissingParamError
	for _, m := range missing {
		for _, p := range params {
			if m == p {
				errs = append(errs, &MissingParamError{Param: m})
			}
		}
	}
	return errs
}
