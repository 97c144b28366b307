package heygen

import "fmt"

// declinedError is an answered request whose envelope carries a code other
// than success.
type declinedError struct {
	code    int
	message string
}

func (e *declinedError) Error() string {
	return fmt.Sprintf("heygen: code %d: %s", e.code, e.message)
}
