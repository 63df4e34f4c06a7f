// package services defines HTTP API clients for the remote tracking services
//
// Last.fm (signed form requests), ListenBrainz (bearer-token JSON)
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexInt decodes a JSON number that Last.fm sometimes serializes as a string
// ("totalPages": "12") and sometimes as a bare number ("accepted": 2).
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected integer, got %s: %w", data, err)
	}
	*f = flexInt(v)
	return nil
}

// decodeObjectOrList decodes a value that Last.fm's XML-to-JSON conversion
// renders as a list when the element repeats, but collapses to a bare object
// when there is exactly one. The result is always a list, so business logic
// never branches on response shape.
func decodeObjectOrList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
		return items, nil
	}

	var item T
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return nil, fmt.Errorf("failed to decode collapsed single element: %w", err)
	}
	return []T{item}, nil
}
