package staffing

import "context"

// Hooks are invoked after a staffing write has committed. A hook failure is
// logged by the Service and never fails or rolls back the parent operation.
type Hooks struct {
	// OnSubmissionCreated runs duplicate detection for the new submission.
	OnSubmissionCreated func(ctx context.Context, s Submission) error

	// OnFinalized runs the overload check after assignments change.
	OnFinalized func(ctx context.Context, s Submission, counsellorIDs []CounsellorID) error
}

// NopHooks returns Hooks with no-op callbacks, so call sites need no nil checks.
func NopHooks() Hooks {
	return Hooks{
		OnSubmissionCreated: func(context.Context, Submission) error { return nil },
		OnFinalized:         func(context.Context, Submission, []CounsellorID) error { return nil },
	}
}
