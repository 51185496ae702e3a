package protocol

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	// DefaultMaxBuf is the capacity above which an idle, fully consumed buffer is
	// released instead of reused.
	DefaultMaxBuf = 16 * 1024

	// DefaultMaxElements bounds the declared element count of aggregate replies.
	DefaultMaxElements = math.MaxUint32

	// compactThreshold is how many consumed bytes may pile up at the front of the
	// buffer before they are discarded.
	compactThreshold = 1024
)

// Encoding controls how string payloads are checked.
type Encoding int

const (
	// EncodingNone keeps payloads as raw bytes.
	EncodingNone Encoding = iota

	// EncodingUTF8Strict makes GetReply return ErrInvalidUTF8 for a reply that
	// contains a string payload which is not valid UTF-8.
	EncodingUTF8Strict

	// EncodingUTF8Replace replaces invalid UTF-8 sequences with U+FFFD.
	EncodingUTF8Replace
)

type (
	ErrorHook     func(err *ReplyError) interface{}
	BooleanHook   func(b bool) interface{}
	DoubleHook    func(f float64, raw string) interface{}
	BigNumberHook func(digits string) interface{}
	VerbatimHook  func(format string, text []byte) interface{}
)

// Options configures a Reader. The zero value decodes RESP3 with no hooks.
type Options struct {
	// Protocol selects the accepted tag set: RESP2 or RESP3. Zero means RESP3.
	Protocol Protocol

	// Hooks map decoded primitives to caller specific values, stored in
	// Value.Custom.
	ErrorHook     ErrorHook
	BooleanHook   BooleanHook
	DoubleHook    DoubleHook
	BigNumberHook BigNumberHook
	VerbatimHook  VerbatimHook

	// RaiseReplyErrors makes GetReply return the first error reply of a root reply
	// as its error, once the root reply has been read completely. It has no
	// effect when ErrorHook is set.
	RaiseReplyErrors bool

	// SetsAsArrays decodes RESP3 sets as arrays.
	SetsAsArrays bool

	Encoding Encoding

	// MaxBuf is the idle buffer capacity that is kept around between replies.
	// Zero means DefaultMaxBuf, negative means unlimited.
	MaxBuf int

	// MaxElements bounds aggregate lengths. Zero means DefaultMaxElements,
	// negative means unlimited.
	MaxElements int64

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Protocol == 0 {
		o.Protocol = RESP3
	}

	if o.MaxBuf == 0 {
		o.MaxBuf = DefaultMaxBuf
	}

	if o.MaxElements == 0 {
		o.MaxElements = DefaultMaxElements
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}

// Validate reports options a Reader cannot work with.
func (o Options) Validate() error {
	switch o.Protocol {
	case 0, RESP2, RESP3:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedProtocol, o.Protocol)
	}
}
