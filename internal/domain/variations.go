package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type VariationAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Variations is an ordered key/value list. It travels as a JSON object whose
// member order is preserved in both directions.
type Variations []VariationAttribute

func (v Variations) Get(key string) (string, bool) {
	for _, attr := range v {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Label renders "K1: V1, K2: V2" in list order.
func (v Variations) Label() string {
	parts := make([]string, 0, len(v))
	for _, attr := range v {
		parts = append(parts, attr.Key+": "+attr.Value)
	}
	return strings.Join(parts, ", ")
}

func (v Variations) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(attr.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Variations) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*v = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("variations: expected object, got %v", tok)
	}

	out := make(Variations, 0, 4)
	seen := make(map[string]int, 4)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("variations: expected string key, got %v", keyTok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("variations: %s: %w", key, err)
		}
		// A repeated key keeps its first position and takes the last value.
		if idx, dup := seen[key]; dup {
			out[idx].Value = value
			continue
		}
		seen[key] = len(out)
		out = append(out, VariationAttribute{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*v = out
	return nil
}

func scalarString(raw any) (string, error) {
	switch val := raw.(type) {
	case string:
		return val, nil
	case float64, bool:
		return fmt.Sprint(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("value must be a scalar")
	}
}
