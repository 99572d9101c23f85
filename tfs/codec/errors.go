package codec

import (
	"errors"
	"fmt"
)

// FormatError reports a serialization buffer that cannot be decoded:
// truncated input, a declared length larger than what remains, an
// unknown type tag, excessive nesting or trailing bytes.
type FormatError struct {
	Offset int64
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: malformed input at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("codec: malformed input at offset %d: %s", e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
