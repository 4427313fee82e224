package widget

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Count is a single key/value entry of a [Counts] mapping.
type Count struct {
	Key   string
	Value float64
}

// Counts is a JSON object of string keys to numbers that remembers the order
// in which the keys appeared in the document.
//
// Histograms served by the stitcher are keyed by bucket label ("1", "2-5", ...)
// and the dashboard plots them in the order the server emitted them, so a plain
// Go map is not enough.
type Counts []Count

// UnmarshalJSON decodes a JSON object, keeping key order.
// A repeated key keeps its first position and takes its last value.
// A JSON null decodes to an empty Counts.
func (c *Counts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("counts: expected object, got %v", tok)
	}

	out := Counts{}
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("counts: expected string key, got %v", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value float64
		switch v := valTok.(type) {
		case json.Number:
			value, err = v.Float64()
			if err != nil {
				return fmt.Errorf("counts: key %q: %w", key, err)
			}
		case nil:
			// null counts as zero
		default:
			return fmt.Errorf("counts: key %q: expected number, got %v", key, valTok)
		}
		if i, seen := index[key]; seen {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, Count{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalJSON encodes the mapping as a JSON object in its stored order.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(entry.Value)
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

// Get returns the value stored under key.
func (c Counts) Get(key string) (float64, bool) {
	for _, entry := range c {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return 0, false
}

// errNotArray is returned when a data-source payload is not a JSON array.
var errNotArray = errors.New("expected a JSON array")
