package errors

import stderrors "errors"

// Failure kinds surfaced by the bridge entry points. Modules wrap these with
// context; callers match them with errors.Is.
var (
	ErrInvalidSignature   = stderrors.New("bridge: invalid signature")
	ErrArithmeticOverflow = stderrors.New("bridge: arithmetic overflow")
	ErrExecutionFailed    = stderrors.New("bridge: execution failed")
	ErrUnauthorized       = stderrors.New("bridge: unauthorized")
	ErrCallDecodeFailed   = stderrors.New("bridge: call decode failed")
)
