package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// HashAttributes returns a stable content hash over canonicalized declared
// attributes: map keys sorted, values type-tagged, so the hash is
// independent of input ordering and of how numbers arrived from the
// front end.
func HashAttributes(attrs map[string]any) string {
	h := sha256.New()
	writeCanonical(h, attrs)
	return hex.EncodeToString(h.Sum(nil))
}

func writeCanonical(w io.Writer, v any) {
	switch val := v.(type) {
	case nil:
		io.WriteString(w, "z;")
	case bool:
		fmt.Fprintf(w, "b:%t;", val)
	case string:
		fmt.Fprintf(w, "s:%d:%s;", len(val), val)
	case int:
		writeNumber(w, float64(val))
	case int32:
		writeNumber(w, float64(val))
	case int64:
		writeNumber(w, float64(val))
	case float32:
		writeNumber(w, float64(val))
	case float64:
		writeNumber(w, val)
	case map[string]any:
		io.WriteString(w, "m{")
		for _, k := range sortedKeys(val) {
			fmt.Fprintf(w, "s:%d:%s=", len(k), k)
			writeCanonical(w, val[k])
		}
		io.WriteString(w, "};")
	case map[any]any:
		keyed := make(map[string]any, len(val))
		for k, item := range val {
			keyed[fmt.Sprintf("%v", k)] = item
		}
		writeCanonical(w, keyed)
	case []any:
		io.WriteString(w, "l[")
		for _, item := range val {
			writeCanonical(w, item)
		}
		io.WriteString(w, "];")
	default:
		fmt.Fprintf(w, "o:%v;", val)
	}
}

// writeNumber collapses integral floats and ints to one encoding so a
// value surviving a JSON round trip hashes identically.
func writeNumber(w io.Writer, f float64) {
	if f == float64(int64(f)) {
		fmt.Fprintf(w, "n:%d;", int64(f))
		return
	}
	io.WriteString(w, "n:"+strconv.FormatFloat(f, 'g', -1, 64)+";")
}
