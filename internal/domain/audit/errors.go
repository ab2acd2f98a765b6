package audit

import "strings"

// InputError is a request the caller must fix; Detail is shown to them as is.
type InputError struct {
	Detail string
}

func (e *InputError) Error() string { return e.Detail }

var (
	ErrNoCode           = &InputError{Detail: "No code provided"}
	ErrInvalidExtension = &InputError{Detail: "Only .sol files are allowed"}
	ErrNotUTF8          = &InputError{Detail: "File must be UTF-8 encoded text"}
)

// SourceExt is the only accepted upload suffix.
const SourceExt = ".sol"

// ValidateFilename checks an uploaded file name before its content is read.
func ValidateFilename(name string) error {
	if !strings.HasSuffix(name, SourceExt) {
		return ErrInvalidExtension
	}
	return nil
}
