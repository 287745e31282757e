package workflow

import "errors"

var (
	ErrUnknownStatus           = errors.New("unknown workflow status")
	ErrInvalidTransition       = errors.New("workflow transition not allowed from current status")
	ErrActorNotAllowed         = errors.New("actor may not perform this transition")
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
)
