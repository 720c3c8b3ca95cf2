// Package crypto produces the canonical JSON form that audit events and
// backup snapshots are hashed over.
package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Canonical form: object keys sorted, no insignificant whitespace, HTML
// characters left unescaped and numbers written in their shortest form.
// Integers that fit in int64 keep full precision.

// CanonicalizeJSON re-encodes one JSON document in canonical form.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	tree, err := decodeTree(input)
	if err != nil {
		return nil, err
	}
	return encodeTree(tree)
}

// CanonicalizeAny accepts a JSON document as []byte or json.RawMessage, or any
// value encoding/json can marshal.
func CanonicalizeAny(v any) ([]byte, error) {
	switch value := v.(type) {
	case json.RawMessage:
		return CanonicalizeJSON(value)
	case []byte:
		return CanonicalizeJSON(value)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize %T: %w", v, err)
	}
	return CanonicalizeJSON(raw)
}

func decodeTree(input []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: trailing data")
	}
	if err := normalizeNumbers(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// normalizeNumbers rewrites every json.Number in place.
func normalizeNumbers(node *any) error {
	switch v := (*node).(type) {
	case json.Number:
		n, err := shortestNumber(v)
		if err != nil {
			return err
		}
		*node = n
	case map[string]any:
		for k := range v {
			item := v[k]
			if err := normalizeNumbers(&item); err != nil {
				return err
			}
			v[k] = item
		}
	case []any:
		for i := range v {
			if err := normalizeNumbers(&v[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func shortestNumber(n json.Number) (json.Number, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return json.Number(strconv.FormatInt(i, 10)), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("invalid JSON number %q", n.String())
	}
	if f == 0 {
		return "0", nil
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	return json.Number(strconv.FormatFloat(f, 'e', -1, 64)), nil
}

// encodeTree relies on encoding/json writing map keys in sorted order.
func encodeTree(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encode canonical JSON: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
