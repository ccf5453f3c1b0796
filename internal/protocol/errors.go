package protocol

import "errors"

var (
	ErrUnknownCommandTag = errors.New("protocol: unknown command tag")
	ErrUnknownErrorKind  = errors.New("protocol: unknown error kind")
	ErrBatchTooLarge     = errors.New("protocol: batch exceeds command limit")
	ErrResultCount       = errors.New("protocol: result count exceeds originating batch")
	ErrResultMismatch    = errors.New("protocol: result does not match originating command")
	ErrMalformedTarget   = errors.New("protocol: malformed target")
	ErrInvalidFlag       = errors.New("protocol: invalid flag byte")
	ErrNilCommand        = errors.New("protocol: nil command")
)
