package wire

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every decode failure.
var ErrDecode = errors.New("wire: decode error")

// DecodeError describes why a value could not be read. Once a Reader returns
// one it keeps returning it.
type DecodeError struct {
	Offset int64
	Reason string
	Err    error // underlying I/O error, if any
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: decode at byte %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("wire: decode at byte %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
func (e *DecodeError) Unwrap() error        { return e.Err }

// MaxLength bounds declared list, string and blob lengths.
const MaxLength = 1 << 24

// MaxDepth bounds list nesting.
const MaxDepth = 64
