package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNeedMoreData is returned by GetReply when the buffered bytes do not yet hold
	// a complete reply. It is not a failure: feed more bytes and call again.
	ErrNeedMoreData = errors.New("Not enough data to complete the reply")

	// ErrProtocol matches every *ProtocolError via errors.Is.
	ErrProtocol = errors.New("Protocol error")

	ErrUnknownType        = errors.New("Unknown reply type byte")
	ErrBadInteger         = errors.New("Bad integer value")
	ErrBadDouble          = errors.New("Bad double value")
	ErrBadBool            = errors.New("Bad bool value")
	ErrBadNull            = errors.New("Bad nil value")
	ErrBadBigNumber       = errors.New("Bad bignum value")
	ErrBadSimpleString    = errors.New("Bad simple string value")
	ErrBadBulkLength      = errors.New("Bulk string length out of range")
	ErrBadAggregateLength = errors.New("Multi-bulk length out of range")
	ErrBadVerbatim        = errors.New("Verbatim string 4 bytes of content type are missing or incorrectly encoded")
	ErrBadTerminator      = errors.New("Bulk payload is not followed by CRLF")

	// ErrInvalidUTF8 is a non-fatal decode error returned under EncodingUTF8Strict.
	ErrInvalidUTF8 = errors.New("Reply contains invalid UTF-8")

	// ErrUnsupportedProtocol is returned for a protocol version other than 2 or 3.
	ErrUnsupportedProtocol = errors.New("Unsupported protocol version")

	// ErrUnsupportedArgument is wrapped by every *EncodeError.
	ErrUnsupportedArgument = errors.New("Argument has no byte representation")
)

// ProtocolError reports malformed bytes on the wire. It is fatal: the Reader that
// returned it is poisoned and the connection feeding it must be abandoned.
type ProtocolError struct {
	// Offset is the stream position, counted from the first byte fed, where
	// decoding failed.
	Offset int
	Err    error
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("Protocol error: %s", e.Err)
	}

	return fmt.Sprintf("Protocol error: %s: %s", e.Err, e.Detail)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// ReplyError is an error reply sent by the server, e.g. WRONGTYPE. It is decoded
// like any other value and never poisons the Reader.
type ReplyError struct {
	Message string

	// Bulk is set for RESP3 bulk errors ('!').
	Bulk bool
}

func (e *ReplyError) Error() string {
	return e.Message
}

// Code returns the leading upper-case word of the message, "ERR" in
// "ERR unknown command".
func (e *ReplyError) Code() string {
	code, _, _ := strings.Cut(e.Message, " ")
	if code == "" || strings.ToUpper(code) != code {
		return ""
	}

	return code
}

// EncodeError reports an argument the Command Encoder could not serialise.
type EncodeError struct {
	Index int
	Arg   interface{}
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("Failed to encode argument %d (%T %v): %s", e.Index, e.Arg, e.Arg, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

func protocolErrorf(offset int, err error, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		Offset: offset,
		Err:    err,
		Detail: fmt.Sprintf(format, args...),
	}
}
