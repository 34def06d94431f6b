package completion

import "context"

// StubResponse is what callers get when no live provider could be reached
// at startup.
const StubResponse = "I'm currently experiencing some technical difficulties. Could you please rephrase your question?"

// Stub is the degraded completer selected when the live provider fails to
// initialize. It never errors.
type Stub struct{}

func (Stub) Complete(context.Context, []Message, Options) (string, error) {
	return StubResponse, nil
}
