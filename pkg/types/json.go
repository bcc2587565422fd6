package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// StringSet stores an ordered, de-duplicated set of string tokens as a JSON
// array column. Ordering is canonical (sorted) so persisted values are
// deterministic.
type StringSet []string

// NewStringSet normalizes raw tokens into sorted unique form.
func NewStringSet(tokens []string) StringSet {
	seen := make(map[string]struct{}, len(tokens))
	out := make(StringSet, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether the set holds the token.
func (s StringSet) Contains(token string) bool {
	for _, candidate := range s {
		if candidate == token {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every requested token is present.
func (s StringSet) ContainsAll(tokens []string) bool {
	for _, token := range tokens {
		if !s.Contains(token) {
			return false
		}
	}
	return true
}

// Value serializes the set to JSON.
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan decodes a JSON column into the set.
func (s *StringSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*s = NewStringSet(decoded)
	return nil
}

// JSONMap stores an arbitrary JSON object inside a JSON column.
type JSONMap map[string]any

// Value serializes the map to JSON. The receiver is a value so the
// interface is satisfied when the map is stored as a plain struct field.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan decodes JSON into the map.
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded JSONMap
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*j = decoded
	return nil
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
