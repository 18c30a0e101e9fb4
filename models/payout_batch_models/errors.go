package payout_batch_models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrClaimConflict          = errors.New("commission records already claimed")
	ErrSettlementFailure      = errors.New("settlement failed")
	ErrSettlementTimeout      = errors.New("settlement timed out")
	ErrValidation             = errors.New("validation error")
	ErrConservationViolation  = errors.New("payout amounts do not reconcile")
)

// ErrNoEligibleVendors is a validation error: a period where every vendor is
// below threshold produces no batch.
var ErrNoEligibleVendors = fmt.Errorf("%w: no vendors meet the minimum payout threshold", ErrValidation)
