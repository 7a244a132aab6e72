package threatlens

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize serializes an arbitrary request fragment (query map, decoded
// body, path params) into a single lowercase searchable string. JSON
// serialization is the structural form; anything json.Marshal rejects
// (cycles, channels, funcs) falls back to the value's default string
// conversion. Normalize never fails and never truncates.
func Normalize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return strings.ToLower(fmt.Sprint(v))
	}
	return strings.ToLower(string(data))
}
