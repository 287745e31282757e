package kpi

import "errors"

var (
	ErrNotFound          = errors.New("kpi record not found")
	ErrItemNotFound      = errors.New("kpi item not found")
	ErrConcurrentUpdate  = errors.New("record was modified by another request")
	ErrDuplicateRecord   = errors.New("a record already exists for this employee and period")
	ErrNotEditable       = errors.New("record cannot be edited in its current status")
	ErrWeightInvalid     = errors.New("weights must sum to exactly 100 before the record can move forward")
	ErrUnknownItem       = errors.New("evaluation references an unknown item")
	ErrInvalidCascade    = errors.New("item cannot be cascaded")
	ErrInvalidEvaluation = errors.New("invalid evaluation")
	ErrNoReviewer        = errors.New("employee has no manager to review the record")
)

var (
	ErrInvalidItem      = errors.New("invalid kpi item")
	ErrInvalidCriterion = errors.New("invalid merit criterion")
)
