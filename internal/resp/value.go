// Package resp implements the RESP codec (R in spec.md §4.5): request
// parsing/framing and the five reply types. Grounded on the wire-level
// conventions surveyed across the pack's Redis-adjacent files (command/reply
// shape in other_examples/...felixhao-overlord__proto-redis-request.go.go,
// reply accessor naming in other_examples/...therealbill-libredis__client-server.go.go)
// and on original_source/src/resp/value.rs for the value model this was
// distilled from.
package resp

// Type tags a Value with one of the five RESP reply types.
type Type byte

const (
	TypeSimpleString Type = '+'
	TypeError        Type = '-'
	TypeInteger      Type = ':'
	TypeBulkString   Type = '$'
	TypeArray        Type = '*'
)

// Value is a RESP reply (or, for arrays of bulk strings, also a request).
// Exactly one of the fields below is meaningful depending on Type:
//   - SimpleString/Error: Str
//   - Integer: Int
//   - BulkString: Bulk (nil + BulkNull=true means the null bulk reply "$-1")
//   - Array: Array (nil + ArrayNull=true means the null array reply "*-1")
type Value struct {
	Type     Type
	Str      string
	Int      int64
	Bulk     []byte
	BulkNull bool
	Array    []Value
	ArrayNull bool
}

func SimpleString(s string) Value { return Value{Type: TypeSimpleString, Str: s} }

// Err builds an Error reply from a wire prefix ("ERR", "WRONGTYPE", ...) and
// message text.
func Err(prefix, text string) Value {
	if prefix == "" {
		prefix = "ERR"
	}
	return Value{Type: TypeError, Str: prefix + " " + text}
}

func Integer(n int64) Value { return Value{Type: TypeInteger, Int: n} }

func Bulk(b []byte) Value {
	if b == nil {
		return NullBulk()
	}
	return Value{Type: TypeBulkString, Bulk: b}
}

func BulkString(s string) Value { return Value{Type: TypeBulkString, Bulk: []byte(s)} }

func NullBulk() Value { return Value{Type: TypeBulkString, BulkNull: true} }

func Array(vs ...Value) Value { return Value{Type: TypeArray, Array: vs} }

func ArrayOf(vs []Value) Value {
	if vs == nil {
		return Value{Type: TypeArray, Array: []Value{}}
	}
	return Value{Type: TypeArray, Array: vs}
}

func NullArray() Value { return Value{Type: TypeArray, ArrayNull: true} }

// OK is the conventional "+OK" simple string reply.
func OK() Value { return SimpleString("OK") }

// IsNull reports whether v is a null bulk string or null array.
func (v Value) IsNull() bool {
	return (v.Type == TypeBulkString && v.BulkNull) || (v.Type == TypeArray && v.ArrayNull)
}
