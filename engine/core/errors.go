package core

import (
	"errors"
)

var (
	// configuration errors: shader and engine-side declarations disagree
	ErrDeviceLimits         = errors.New("descriptor set layout exceeds device limits")
	ErrAmbiguousBinding     = errors.New("ambiguous binding")
	ErrKindMismatch         = errors.New("descriptor kind mismatch")
	ErrMissingSlot          = errors.New("slot missing from descriptor set signature")
	ErrMissingDescriptorSet = errors.New("descriptor set not found")
	ErrPushConstantNotFound = errors.New("push constants not found")
	ErrPushConstantConflict = errors.New("push constants claimed by conflicting stages")
	ErrSignatureFile        = errors.New("invalid signature file")

	ErrDeviceFailure       = errors.New("device rejected object creation")
	ErrInvalidEncoderState = errors.New("invalid encoder state")
	ErrRingExhausted       = errors.New("temporary buffer space exhausted")
	ErrUnknown             = errors.New("unknown")
)
