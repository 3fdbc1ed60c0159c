// Package codec converts json, array, and boolean field values between
// their store representation (strings, integers) and their API
// representation. Each kind gets a symmetric encode/decode pair; decoding
// then encoding a well-formed value yields the original representation.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jsguru-git/api/internal/schema"
)

// JSONCodec maps json fields between objects and their serialized form
type JSONCodec struct{}

// Encode serializes a non-string value to its stored JSON string
func (JSONCodec) Encode(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json field: %w", err)
	}
	return string(b), nil
}

// Decode parses a stored JSON string back into a value
func (JSONCodec) Decode(value interface{}) (interface{}, error) {
	var raw string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return value, nil
	}
	if raw == "" {
		return nil, nil
	}
	var out interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode json field: %w", err)
	}
	return out, nil
}

// ListCodec maps array fields between string slices and a comma-delimited
// stored string. Values containing commas are split apart on decode.
type ListCodec struct{}

// Encode joins a slice into the stored comma-delimited string
func (ListCodec) Encode(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []string:
		return strings.Join(v, ","), nil
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ","), nil
	default:
		return nil, fmt.Errorf("cannot encode %T as array field", value)
	}
}

// Decode splits the stored string into a slice. Empty or nil values decode
// to an empty slice.
func (ListCodec) Decode(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case []byte:
		return splitList(string(v)), nil
	case string:
		return splitList(v), nil
	default:
		return nil, fmt.Errorf("cannot decode %T as array field", value)
	}
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// BoolCodec maps boolean fields from the integer and string forms drivers
// return onto bool
type BoolCodec struct{}

// Decode coerces any stored representation to bool
func (BoolCodec) Decode(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case []byte:
		return parseBool(string(v))
	case string:
		return parseBool(v)
	default:
		return nil, fmt.Errorf("cannot decode %T as boolean field", value)
	}
}

// Encode passes booleans through; drivers handle their own storage form
func (BoolCodec) Encode(value interface{}) (interface{}, error) {
	return value, nil
}

func parseBool(s string) (interface{}, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode boolean field: %w", err)
	}
	return b, nil
}

// EncodeRecord applies the json and array codecs to a record's fields on
// the way into the store
func EncodeRecord(c *schema.Collection, record schema.Record) error {
	for key, value := range record {
		field := c.Field(key)
		if field == nil {
			continue
		}
		var (
			encoded interface{}
			err     error
		)
		switch field.Kind {
		case schema.KindJSON:
			encoded, err = JSONCodec{}.Encode(value)
		case schema.KindArray:
			encoded, err = ListCodec{}.Encode(value)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		record[key] = encoded
	}
	return nil
}

// DecodeRecord applies the json, array, and boolean codecs to a record's
// fields on the way out of the store
func DecodeRecord(c *schema.Collection, record schema.Record) error {
	for key, value := range record {
		field := c.Field(key)
		if field == nil {
			continue
		}
		var (
			decoded interface{}
			err     error
		)
		switch field.Kind {
		case schema.KindJSON:
			decoded, err = JSONCodec{}.Decode(value)
		case schema.KindArray:
			decoded, err = ListCodec{}.Decode(value)
		case schema.KindBoolean:
			decoded, err = BoolCodec{}.Decode(value)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		record[key] = decoded
	}
	return nil
}
