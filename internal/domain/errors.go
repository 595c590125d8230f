package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCodeRequired              = errors.New("code is required")
	ErrUnknownCode               = errors.New("invalid or unknown code")
	ErrCodeInactive              = errors.New("code is inactive")
	ErrCodeNotYetStarted         = errors.New("code not active yet")
	ErrCodeExpired               = errors.New("code has expired")
	ErrUsageLimitReached         = errors.New("usage limit reached")
	ErrGlobalUsageLimitReached   = errors.New("code usage limit reached")
	ErrCustomerUsageLimitReached = errors.New("you have already used this code")
	ErrMinimumOrderNotMet        = errors.New("cart does not meet minimum order amount")

	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrInvalidQuantity      = errors.New("quantity must be between 1 and 99")
	ErrProductNotFound      = errors.New("product not found")
	ErrUsageAlreadyRecorded = errors.New("usage already recorded for this order")
)

// RejectionReason is the stable, machine readable reason for refusing a code.
type RejectionReason string

const (
	ReasonCodeRequired       RejectionReason = "CODE_REQUIRED"
	ReasonUnknownCode        RejectionReason = "UNKNOWN_CODE"
	ReasonCodeInactive       RejectionReason = "CODE_INACTIVE"
	ReasonCodeNotYetStarted  RejectionReason = "CODE_NOT_YET_STARTED"
	ReasonCodeExpired        RejectionReason = "CODE_EXPIRED"
	ReasonGlobalUsageLimit   RejectionReason = "USAGE_LIMIT_REACHED"
	ReasonCustomerUsageLimit RejectionReason = "CUSTOMER_USAGE_LIMIT_REACHED"
	ReasonMinimumOrderNotMet RejectionReason = "MINIMUM_ORDER_NOT_MET"
)

var reasonErrors = map[RejectionReason]error{
	ReasonCodeRequired:       ErrCodeRequired,
	ReasonUnknownCode:        ErrUnknownCode,
	ReasonCodeInactive:       ErrCodeInactive,
	ReasonCodeNotYetStarted:  ErrCodeNotYetStarted,
	ReasonCodeExpired:        ErrCodeExpired,
	ReasonGlobalUsageLimit:   ErrGlobalUsageLimitReached,
	ReasonCustomerUsageLimit: ErrCustomerUsageLimitReached,
	ReasonMinimumOrderNotMet: ErrMinimumOrderNotMet,
}

// RejectionError is returned when a promo code cannot be applied.
// Threshold is set only for ReasonMinimumOrderNotMet.
type RejectionError struct {
	Reason    RejectionReason
	Code      string
	Threshold *Money
}

func Reject(reason RejectionReason, code string) *RejectionError {
	return &RejectionError{Reason: reason, Code: code}
}

func (e *RejectionError) Error() string {
	msg := e.Unwrap().Error()
	if e.Threshold != nil {
		return fmt.Sprintf("%s (minimum %s)", msg, e.Threshold)
	}
	return msg
}

func (e *RejectionError) Unwrap() error {
	if err, ok := reasonErrors[e.Reason]; ok {
		return err
	}
	return ErrUnknownCode
}

// Is lets both usage reasons match ErrUsageLimitReached.
func (e *RejectionError) Is(target error) bool {
	if target == ErrUsageLimitReached {
		return e.Reason == ReasonGlobalUsageLimit || e.Reason == ReasonCustomerUsageLimit
	}
	return false
}

// StorageError marks err as a storage failure of op while keeping the cause.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
