package types

import (
	"fmt"
	"strconv"
)

// ToString converts a decoded JSON scalar to its canonical string form.
// JSON numbers arrive as float64; integral values are rendered without a
// fractional part so "25" does not become "25.000000".
func ToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
