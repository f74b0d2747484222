package piimask

// UploadState identifies the phase of the submission workflow. Exactly one
// state is active at a time. Idle, failed and succeeded all accept a new
// submission, so the machine has no terminal state: it lives as long as
// the session does.
type UploadState string

const (
	StateIdle       UploadState = "idle"
	StateValidating UploadState = "validating"
	StateSubmitting UploadState = "submitting"
	StateSucceeded  UploadState = "succeeded"
	StateFailed     UploadState = "failed"
)

// Status is a snapshot of the workflow taken under the Uploader's lock.
// Message carries the user-facing error line of a failed attempt and
// Result the image of a succeeded one; each is zero in every other state,
// so a new terminal status fully replaces whatever the previous attempt
// left behind.
type Status struct {
	ID      string // submission id, empty until the first submission
	State   UploadState
	Style   MaskStyle // style captured for this submission
	Message string
	Result  *MaskedImage
}

// Loading reports whether a submission is being processed, which is the
// terminal client's equivalent of the browser's spinner.
func (s Status) Loading() bool {
	return s.State == StateSubmitting
}

// Ready reports whether the workflow would accept a new submission.
func (s Status) Ready() bool {
	return s.State != StateValidating && s.State != StateSubmitting
}
