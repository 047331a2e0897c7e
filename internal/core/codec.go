package core

// codec.go is the extended-JSON encoding used by engines that persist
// documents in JSON columns. Plain JSON loses the difference between a
// timestamp and a string, so tagged values are wrapped:
//
//	time.Time -> {"$date": "2024-01-02T03:04:05.000Z"}
//	uuid.UUID -> {"$oid": "0190f5c2-..."}
//
// Numbers decode as int64 when integral, float64 otherwise.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	dateKey = "$date"
	oidKey  = "$oid"
)

// EncodeDocument marshals a storage document to extended JSON.
func EncodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	b, err := json.Marshal(encodeValue(doc))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

// EncodeValue marshals a single storage value to extended JSON.
func EncodeValue(v any) ([]byte, error) {
	b, err := json.Marshal(encodeValue(v))
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

// EncodeList marshals a list of storage documents to an extended JSON array.
func EncodeList(docs []Document) ([]byte, error) {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = encodeValue(d)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return b, nil
}

// DecodeDocument unmarshals extended JSON into a storage document.
func DecodeDocument(b []byte) (Document, error) {
	v, err := decodeJSON(b)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return Document{}, nil
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: expected object, got %T", v)
	}
	return doc, nil
}

// DecodeList unmarshals an extended JSON array of objects.
func DecodeList(b []byte) ([]Document, error) {
	v, err := decodeJSON(b)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decode list: expected array, got %T", v)
	}
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		if doc, ok := item.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// DecodeValue unmarshals a single extended JSON value.
func DecodeValue(b []byte) (any, error) {
	return decodeJSON(b)
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return decodeValue(v), nil
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{dateKey: FormatTime(x)}
	case uuid.UUID:
		return map[string]any{oidKey: x.String()}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = encodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return v
	}
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x[dateKey].(string); ok {
				if t, ok := ParseTime(s); ok {
					return t
				}
			}
			if s, ok := x[oidKey].(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					return id
				}
			}
		}
		for k, item := range x {
			x[k] = decodeValue(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = decodeValue(item)
		}
		return x
	default:
		return v
	}
}
