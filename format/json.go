package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/respkit/protocol"
)

// rootKey is where the reply sits inside the scratch document JSON builds.
const rootKey = "reply"

// ErrNoMatch is returned by Select when the path selects nothing.
var ErrNoMatch = errors.New("Path did not match anything")

// JSON renders v as a JSON document.
//
//   - strings, verbatim text and big numbers become strings
//   - integers and finite doubles become numbers; inf, -inf and nan are
//     rendered as strings
//   - errors become {"error": "<message>"}
//   - arrays, sets and pushes become arrays, maps objects with the String form
//     of each key
//   - hooked values are rendered from whatever the hook returned
func JSON(v protocol.Value) ([]byte, error) {
	doc, err := setValue([]byte(`{}`), rootKey, v)
	if err != nil {
		return nil, err
	}

	return []byte(gjson.GetBytes(doc, rootKey).Raw), nil
}

// JSONLines renders each reply as JSON on its own line.
func JSONLines(replies []protocol.Value) ([]byte, error) {
	var out []byte

	for i, v := range replies {
		b, err := JSON(v)
		if err != nil {
			return nil, fmt.Errorf("Failed to render reply %d: %w", i, err)
		}

		out = append(out, b...)
		out = append(out, '\n')
	}

	return out, nil
}

// JSONArray renders replies as one JSON array.
func JSONArray(replies []protocol.Value) ([]byte, error) {
	doc := []byte(`[]`)

	for i, v := range replies {
		b, err := JSON(v)
		if err != nil {
			return nil, fmt.Errorf("Failed to render reply %d: %w", i, err)
		}

		if doc, err = sjson.SetRawBytes(doc, "-1", b); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// Select renders v as JSON and looks up path in it using gjson path syntax, e.g.
// "0.name" or "#.id".
func Select(v protocol.Value, path string) (gjson.Result, error) {
	doc, err := JSON(v)
	if err != nil {
		return gjson.Result{}, err
	}

	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return res, fmt.Errorf("Failed to select '%s': %w", path, ErrNoMatch)
	}

	return res, nil
}

func setValue(doc []byte, path string, v protocol.Value) ([]byte, error) {
	if v.Hooked {
		return sjson.SetBytes(doc, path, v.Custom)
	}

	switch v.Kind {
	case protocol.KindSimpleString, protocol.KindBulkString, protocol.KindBigNumber, protocol.KindVerbatim:
		return sjson.SetBytes(doc, path, string(v.Str))

	case protocol.KindInteger:
		return sjson.SetBytes(doc, path, v.Int)

	case protocol.KindDouble:
		if name, ok := nonFinite(v.Float); ok {
			return sjson.SetBytes(doc, path, name)
		}

		return sjson.SetBytes(doc, path, v.Float)

	case protocol.KindBoolean:
		return sjson.SetBytes(doc, path, v.Bool)

	case protocol.KindNull:
		return sjson.SetRawBytes(doc, path, []byte("null"))

	case protocol.KindError, protocol.KindBulkError:
		return sjson.SetBytes(doc, path+".error", v.Err.Message)

	case protocol.KindArray, protocol.KindSet, protocol.KindPush:
		doc, err := sjson.SetRawBytes(doc, path, []byte("[]"))
		if err != nil {
			return nil, err
		}

		for i, e := range v.Elems {
			if doc, err = setValue(doc, path+"."+strconv.Itoa(i), e); err != nil {
				return nil, err
			}
		}

		return doc, nil

	case protocol.KindMap:
		doc, err := sjson.SetRawBytes(doc, path, []byte("{}"))
		if err != nil {
			return nil, err
		}

		for _, p := range v.Pairs {
			if doc, err = setValue(doc, path+"."+objectKey(p.Key), p.Value); err != nil {
				return nil, err
			}
		}

		return doc, nil

	default:
		return nil, fmt.Errorf("Failed to render %s value", v.Kind)
	}
}

// objectKey turns a map key into a single sjson path component that is always
// treated as an object key.
func objectKey(k protocol.Value) string {
	key := k.String()
	if k.Hooked {
		key = fmt.Sprintf("%v", k.Custom)
	}

	var b strings.Builder
	b.WriteByte(':')

	for i := 0; i < len(key); i++ {
		c := key[i]
		if !isPlainKeyChar(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func isPlainKeyChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c >= 0x80
}

func nonFinite(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return "nan", true
	case math.IsInf(f, 1):
		return "inf", true
	case math.IsInf(f, -1):
		return "-inf", true
	default:
		return "", false
	}
}
