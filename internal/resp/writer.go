package resp

import (
	"bufio"
	"strconv"
)

// WriteValue encodes v onto w using the five RESP reply encodings from
// spec.md §4.5. It never flushes; callers batch replies (e.g. for MULTI/EXEC
// and pipelined requests) and flush once per logical response via w.Flush().
func WriteValue(w *bufio.Writer, v Value) error {
	switch v.Type {
	case TypeSimpleString:
		w.WriteByte('+')
		w.WriteString(v.Str)
		w.WriteString("\r\n")
	case TypeError:
		w.WriteByte('-')
		w.WriteString(v.Str)
		w.WriteString("\r\n")
	case TypeInteger:
		w.WriteByte(':')
		w.WriteString(strconv.FormatInt(v.Int, 10))
		w.WriteString("\r\n")
	case TypeBulkString:
		if v.BulkNull {
			w.WriteString("$-1\r\n")
			return nil
		}
		w.WriteByte('$')
		w.WriteString(strconv.Itoa(len(v.Bulk)))
		w.WriteString("\r\n")
		w.Write(v.Bulk)
		w.WriteString("\r\n")
	case TypeArray:
		if v.ArrayNull {
			w.WriteString("*-1\r\n")
			return nil
		}
		w.WriteByte('*')
		w.WriteString(strconv.Itoa(len(v.Array)))
		w.WriteString("\r\n")
		for _, elem := range v.Array {
			if err := WriteValue(w, elem); err != nil {
				return err
			}
		}
	}
	return nil
}
