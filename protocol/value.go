package protocol

import (
	"fmt"
	"math/big"

	"github.com/elliotchance/orderedmap/v3"
)

// Value is a decoded reply. Kind selects which of the other fields is meaningful:
//
//   - KindSimpleString, KindBulkString, KindBigNumber: Str
//   - KindVerbatim: Str and Format
//   - KindError, KindBulkError: Err
//   - KindInteger: Int
//   - KindDouble: Float (Str keeps the wire text)
//   - KindBoolean: Bool
//   - KindArray, KindSet, KindPush: Elems
//   - KindMap: Pairs
//   - KindNull: nothing
//
// When a hook from Options was applied to the value, Hooked is set and Custom
// holds whatever the hook returned.
type Value struct {
	Kind   Kind
	Str    []byte
	Format string
	Int    int64
	Float  float64
	Bool   bool
	Err    *ReplyError
	Elems  []Value
	Pairs  []Pair

	Hooked bool
	Custom interface{}
}

// Pair is one key/value entry of a map reply.
type Pair struct {
	Key   Value
	Value Value
}

// IsNull reports whether the value is a null reply, including the RESP2 null bulk
// string and null array.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// ErrorOrNil returns the reply error carried by v, or nil.
func (v Value) ErrorOrNil() error {
	if v.Err != nil {
		return v.Err
	}

	return nil
}

// Len returns the number of children of an aggregate value.
func (v Value) Len() int {
	if v.Kind == KindMap {
		return len(v.Pairs)
	}

	return len(v.Elems)
}

// BigInt parses a big number reply.
func (v Value) BigInt() (*big.Int, bool) {
	if v.Kind != KindBigNumber {
		return nil, false
	}

	return new(big.Int).SetString(string(v.Str), 10)
}

func (v Value) String() string {
	switch v.Kind {
	case KindSimpleString, KindBulkString, KindBigNumber, KindVerbatim, KindDouble:
		return string(v.Str)
	case KindError, KindBulkError:
		return v.Err.Error()
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case KindNull:
		return "<nil>"
	case KindMap:
		return fmt.Sprintf("%s%v", v.Kind, v.Pairs)
	default:
		return fmt.Sprintf("%s%v", v.Kind, v.Elems)
	}
}

// Interface converts v into plain Go values:
//
//   - strings, verbatim text and big numbers become string
//   - integers int64, doubles float64, booleans bool
//   - errors *ReplyError, nulls nil
//   - arrays, sets and pushes []interface{}
//   - maps *orderedmap.OrderedMap[interface{}, interface{}] in wire order; aggregate
//     keys are keyed by their String form since slices are not comparable
//
// Hooked values are returned as the hook produced them.
func (v Value) Interface() interface{} {
	if v.Hooked {
		return v.Custom
	}

	switch v.Kind {
	case KindSimpleString, KindBulkString, KindBigNumber, KindVerbatim:
		return string(v.Str)
	case KindError, KindBulkError:
		return v.Err
	case KindInteger:
		return v.Int
	case KindDouble:
		return v.Float
	case KindBoolean:
		return v.Bool
	case KindMap:
		m := orderedmap.NewOrderedMapWithCapacity[interface{}, interface{}](len(v.Pairs))
		for _, p := range v.Pairs {
			m.Set(mapKey(p.Key), p.Value.Interface())
		}

		return m
	case KindArray, KindSet, KindPush:
		elems := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = e.Interface()
		}

		return elems
	default:
		return nil
	}
}

func mapKey(k Value) interface{} {
	if k.Kind.IsAggregate() && !k.IsNull() {
		return k.String()
	}

	key := k.Interface()
	switch key.(type) {
	case nil, string, int64, float64, bool, *ReplyError:
		return key
	default:
		// Hook results may not be comparable.
		return fmt.Sprintf("%v", key)
	}
}
