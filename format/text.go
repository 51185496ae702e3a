package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luma/respkit/protocol"
)

// Text renders v the way redis-cli prints replies on a terminal:
//
//	1) "hello"
//	2) (integer) 1
//	3) 1) (nil)
//	   2) (error) ERR wrong
func Text(v protocol.Value) string {
	var b strings.Builder
	writeText(&b, v, "")

	return b.String()
}

func writeText(b *strings.Builder, v protocol.Value, indent string) {
	if v.Hooked {
		fmt.Fprintf(b, "(custom) %v\n", v.Custom)
		return
	}

	switch v.Kind {
	case protocol.KindArray, protocol.KindSet, protocol.KindPush:
		if len(v.Elems) == 0 {
			b.WriteString(emptyName(v.Kind))
			b.WriteByte('\n')
			return
		}

		width := len(strconv.Itoa(len(v.Elems)))
		for i, e := range v.Elems {
			label := fmt.Sprintf("%*d%c ", width, i+1, separator(v.Kind))
			if i > 0 {
				b.WriteString(indent)
			}
			b.WriteString(label)
			writeText(b, e, indent+strings.Repeat(" ", len(label)))
		}

	case protocol.KindMap:
		if len(v.Pairs) == 0 {
			b.WriteString(emptyName(v.Kind))
			b.WriteByte('\n')
			return
		}

		width := len(strconv.Itoa(len(v.Pairs)))
		for i, p := range v.Pairs {
			label := fmt.Sprintf("%*d# ", width, i+1)
			if i > 0 {
				b.WriteString(indent)
			}
			b.WriteString(label)

			key := strings.TrimSuffix(Text(p.Key), "\n")
			b.WriteString(key)
			b.WriteString(" => ")
			writeText(b, p.Value, indent+strings.Repeat(" ", len(label)+len(key)+4))
		}

	default:
		b.WriteString(scalarText(v))
		b.WriteByte('\n')
	}
}

func scalarText(v protocol.Value) string {
	switch v.Kind {
	case protocol.KindSimpleString:
		return string(v.Str)
	case protocol.KindBulkString:
		return quote(v.Str)
	case protocol.KindVerbatim:
		return string(v.Str)
	case protocol.KindInteger:
		return "(integer) " + strconv.FormatInt(v.Int, 10)
	case protocol.KindDouble:
		return "(double) " + string(v.Str)
	case protocol.KindBigNumber:
		return "(big number) " + string(v.Str)
	case protocol.KindBoolean:
		return "(" + strconv.FormatBool(v.Bool) + ")"
	case protocol.KindError, protocol.KindBulkError:
		return "(error) " + v.Err.Message
	case protocol.KindNull:
		return "(nil)"
	default:
		return "(" + v.Kind.String() + ")"
	}
}

func separator(k protocol.Kind) byte {
	if k == protocol.KindSet {
		return '~'
	}

	return ')'
}

func emptyName(k protocol.Kind) string {
	switch k {
	case protocol.KindMap:
		return "(empty hash)"
	case protocol.KindSet:
		return "(empty set)"
	default:
		return "(empty array)"
	}
}

// quote wraps p in double quotes, escaping everything that is not printable
// ASCII with C style escapes.
func quote(p []byte) string {
	var b strings.Builder
	b.Grow(len(p) + 2)
	b.WriteByte('"')

	for _, c := range p {
		switch c {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}

	b.WriteByte('"')
	return b.String()
}
