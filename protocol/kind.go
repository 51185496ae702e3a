package protocol

// Kind identifies a reply type. The values are the wire prefix bytes.
type Kind byte

const (
	KindInvalid      Kind = 0
	KindSimpleString Kind = '+'
	KindError        Kind = '-'
	KindInteger      Kind = ':'
	KindBulkString   Kind = '$'
	KindArray        Kind = '*'

	// RESP3 only
	KindNull      Kind = '_'
	KindBoolean   Kind = '#'
	KindDouble    Kind = ','
	KindBigNumber Kind = '('
	KindBulkError Kind = '!'
	KindVerbatim  Kind = '='
	KindMap       Kind = '%'
	KindSet       Kind = '~'
	KindPush      Kind = '>'
)

// Protocol selects the RESP version a Reader accepts.
type Protocol int

const (
	RESP2 Protocol = 2
	RESP3 Protocol = 3
)

var kindNames = map[Kind]string{
	KindSimpleString: "simple-string",
	KindError:        "error",
	KindInteger:      "integer",
	KindBulkString:   "bulk-string",
	KindArray:        "array",
	KindNull:         "null",
	KindBoolean:      "boolean",
	KindDouble:       "double",
	KindBigNumber:    "big-number",
	KindBulkError:    "bulk-error",
	KindVerbatim:     "verbatim-string",
	KindMap:          "map",
	KindSet:          "set",
	KindPush:         "push",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "invalid"
}

// Supported reports whether the kind's tag is part of the given protocol version.
func (k Kind) Supported(p Protocol) bool {
	switch k {
	case KindSimpleString, KindError, KindInteger, KindBulkString, KindArray:
		return true

	case KindNull, KindBoolean, KindDouble, KindBigNumber, KindBulkError,
		KindVerbatim, KindMap, KindSet, KindPush:
		return p >= RESP3

	default:
		return false
	}
}

// IsAggregate reports whether values of this kind carry child values.
func (k Kind) IsAggregate() bool {
	switch k {
	case KindArray, KindMap, KindSet, KindPush:
		return true
	}

	return false
}

// IsError reports whether the kind is a server error reply.
func (k Kind) IsError() bool {
	return k == KindError || k == KindBulkError
}

func (k Kind) isBulk() bool {
	return k == KindBulkString || k == KindBulkError || k == KindVerbatim
}
