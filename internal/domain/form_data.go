package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FormField is one entry of the ordered form_data mapping.
type FormField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// FormData keeps field order as drafted; lookups are linear because forms are small.
type FormData []FormField

func (f FormData) Get(name string) (any, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

func (f FormData) Set(name string, value any) FormData {
	for i := range f {
		if f[i].Name == name {
			f[i].Value = value
			return f
		}
	}
	return append(f, FormField{Name: name, Value: value})
}

func (f FormData) Without(names func(string) bool) FormData {
	out := make(FormData, 0, len(f))
	for _, field := range f {
		if names(field.Name) {
			continue
		}
		out = append(out, field)
	}
	return out
}

func (f FormData) Clone() FormData {
	if f == nil {
		return nil
	}
	out := make(FormData, len(f))
	copy(out, f)
	return out
}

// Map flattens the form for schema validation and canonical hashing.
func (f FormData) Map() map[string]any {
	out := make(map[string]any, len(f))
	for _, field := range f {
		out[field.Name] = field.Value
	}
	return out
}

// MarshalJSON renders the form as a JSON object in field order.
func (f FormData) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("form field %s: %w", field.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object and keeps the key order of the document.
func (f *FormData) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("form_data must be a JSON object")
	}
	out := FormData{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("form_data key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("form field %s: %w", key, err)
		}
		out = out.Set(key, normalizeNumber(value))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func normalizeNumber(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if fl, err := v.Float64(); err == nil {
			return fl
		}
		return v.String()
	case map[string]any:
		for k, inner := range v {
			v[k] = normalizeNumber(inner)
		}
		return v
	case []any:
		for i, inner := range v {
			v[i] = normalizeNumber(inner)
		}
		return v
	default:
		return value
	}
}

// DecodeDocument reads a stored JSON object with numbers as int64 or float64,
// matching what FormData decoding produces.
func DecodeDocument(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]any{}, nil
	}
	return normalizeNumber(out).(map[string]any), nil
}
