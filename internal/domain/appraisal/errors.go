package appraisal

import "errors"

var (
	ErrNotFound           = errors.New("appraisal not found")
	ErrCycleNotFound      = errors.New("appraisal cycle not found")
	ErrFeedbackNotFound   = errors.New("feedback not found")
	ErrDuplicateAppraisal = errors.New("employee already has an appraisal in this cycle")
	ErrInvalidCycle       = errors.New("invalid appraisal cycle")
	ErrInvalidFormula     = errors.New("invalid final score formula")
	ErrCycleTransition    = errors.New("cycle status change not allowed")
	ErrCycleClosed        = errors.New("appraisal cycle is closed")
	ErrInvalidKRA         = errors.New("invalid kra")
	ErrInvalidRating      = errors.New("invalid self rating")
	ErrInvalidFeedback    = errors.New("invalid feedback")
	ErrFeedbackSubmitted  = errors.New("feedback already submitted")
	ErrNotReviewer        = errors.New("only the assigned reviewer may submit this feedback")
)
