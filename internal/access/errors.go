package access

import "fmt"

// AccessDeniedError is raised by the assert variants when a credential's
// policy denies the requested path. The message is safe to surface to the
// calling credential: it names only the path that was requested.
type AccessDeniedError struct {
	Path string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Path)
}

// ReadOnlyError is raised when a mutation targets a path marked read-only.
// Kept distinct from AccessDeniedError for operator clarity.
type ReadOnlyError struct {
	Path string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("path is read-only: %s", e.Path)
}
