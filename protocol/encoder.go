package protocol

import (
	"encoding"
	"fmt"
	"io"
	"strconv"
)

// Pack encodes args as a single command in the multi-bulk format:
//
//	*<argc>\r\n
//	$<len>\r\n<arg>\r\n
//	...
//
// Numbers are sent in their decimal text form. An argument with no byte
// representation fails with an *EncodeError naming its position.
func Pack(args ...interface{}) ([]byte, error) {
	return AppendCommand(nil, args...)
}

// PackArgs encodes one command built from several argument lists. The output is
// identical to Pack called with the lists concatenated.
func PackArgs(lists ...[]interface{}) ([]byte, error) {
	n := 0
	for _, l := range lists {
		n += len(l)
	}

	b := appendPrefix(nil, '*', int64(n))

	i := 0
	for _, l := range lists {
		for _, arg := range l {
			var err error
			if b, err = appendArg(b, i, arg); err != nil {
				return nil, err
			}
			i++
		}
	}

	return b, nil
}

// PackPipeline encodes several commands back to back, ready to be written in one
// go and answered in order.
func PackPipeline(cmds ...[]interface{}) ([]byte, error) {
	var (
		b   []byte
		err error
	)

	for i, cmd := range cmds {
		if b, err = AppendCommand(b, cmd...); err != nil {
			return nil, fmt.Errorf("Failed to pack command %d: %w", i, err)
		}
	}

	return b, nil
}

// AppendCommand appends the encoding of args to dst. On error dst is returned
// unchanged.
func AppendCommand(dst []byte, args ...interface{}) ([]byte, error) {
	b := appendPrefix(dst, '*', int64(len(args)))

	for i, arg := range args {
		var err error
		if b, err = appendArg(b, i, arg); err != nil {
			return dst, err
		}
	}

	return b, nil
}

// WriteCommand encodes args and writes them to w with a single Write call.
func WriteCommand(w io.Writer, args ...interface{}) error {
	b, err := Pack(args...)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

func appendPrefix(b []byte, prefix byte, n int64) []byte {
	b = append(b, prefix)
	b = strconv.AppendInt(b, n, 10)
	return append(b, '\r', '\n')
}

func appendBulk(b []byte, p []byte) []byte {
	b = appendPrefix(b, '$', int64(len(p)))
	b = append(b, p...)
	return append(b, '\r', '\n')
}

func appendBulkString(b []byte, s string) []byte {
	b = appendPrefix(b, '$', int64(len(s)))
	b = append(b, s...)
	return append(b, '\r', '\n')
}

func appendArg(b []byte, i int, arg interface{}) ([]byte, error) {
	switch v := arg.(type) {
	case []byte:
		return appendBulk(b, v), nil
	case string:
		return appendBulkString(b, v), nil
	case int:
		return appendBulkString(b, strconv.FormatInt(int64(v), 10)), nil
	case int8:
		return appendBulkString(b, strconv.FormatInt(int64(v), 10)), nil
	case int16:
		return appendBulkString(b, strconv.FormatInt(int64(v), 10)), nil
	case int32:
		return appendBulkString(b, strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return appendBulkString(b, strconv.FormatInt(v, 10)), nil
	case uint:
		return appendBulkString(b, strconv.FormatUint(uint64(v), 10)), nil
	case uint8:
		return appendBulkString(b, strconv.FormatUint(uint64(v), 10)), nil
	case uint16:
		return appendBulkString(b, strconv.FormatUint(uint64(v), 10)), nil
	case uint32:
		return appendBulkString(b, strconv.FormatUint(uint64(v), 10)), nil
	case uint64:
		return appendBulkString(b, strconv.FormatUint(v, 10)), nil
	case float32:
		return appendBulkString(b, strconv.FormatFloat(float64(v), 'g', -1, 32)), nil
	case float64:
		return appendBulkString(b, strconv.FormatFloat(v, 'g', -1, 64)), nil
	case bool:
		if v {
			return appendBulkString(b, "1"), nil
		}
		return appendBulkString(b, "0"), nil
	case encoding.BinaryMarshaler:
		p, err := v.MarshalBinary()
		if err != nil {
			return b, &EncodeError{Index: i, Arg: arg, Err: fmt.Errorf("%w: %s", ErrUnsupportedArgument, err)}
		}
		return appendBulk(b, p), nil
	case encoding.TextMarshaler:
		p, err := v.MarshalText()
		if err != nil {
			return b, &EncodeError{Index: i, Arg: arg, Err: fmt.Errorf("%w: %s", ErrUnsupportedArgument, err)}
		}
		return appendBulk(b, p), nil
	case fmt.Stringer:
		return appendBulkString(b, v.String()), nil
	default:
		return b, &EncodeError{Index: i, Arg: arg, Err: ErrUnsupportedArgument}
	}
}
