package driven

import "context"

// Advisor is an optional external prediction model consumed as a prompt
// text injector. It is not part of the retrieval core: a nil Advisor
// disables the feature and an Advisor failure degrades to an empty block.
type Advisor interface {
	// Advise returns a text block to inject into the generation prompt
	// for the given user profile, or "" when it has nothing to add.
	Advise(ctx context.Context, profile map[string]any) (string, error)
}
