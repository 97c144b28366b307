// Package avatar defines what the pipeline needs from a streaming avatar
// provider.
package avatar

import "context"

// Handle identifies an open avatar streaming session.
type Handle struct {
	ID    string
	Token string
	URL   string
}

type Client interface {
	CreateSession(ctx context.Context) (Handle, error)
	// SendText asks the avatar to speak text. It reports false when the
	// provider declined the task without failing.
	SendText(ctx context.Context, handle Handle, text string) (bool, error)
	StopSession(ctx context.Context, handle Handle) error
}
