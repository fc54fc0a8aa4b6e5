package keywords

import (
	"errors"
	"fmt"
)

// ErrUnknownKeywordName matches every *UnknownKeywordNameError via errors.Is.
var ErrUnknownKeywordName = errors.New("unknown keyword name")

// UnknownKeywordNameError is returned when a semantic name has no entry in
// the translation table. It is raised before any request is sent.
type UnknownKeywordNameError struct {
	Name Name
}

func (e *UnknownKeywordNameError) Error() string {
	return fmt.Sprintf("keywords: no keyword type name for %q", string(e.Name))
}

func (e *UnknownKeywordNameError) Is(target error) bool {
	return target == ErrUnknownKeywordName
}

// IsUnknownKeywordName reports whether err is an *UnknownKeywordNameError.
func IsUnknownKeywordName(err error) bool {
	var nameErr *UnknownKeywordNameError
	return errors.As(err, &nameErr)
}
