package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for golden files and for
// content-addressed comparison of kernels and scheduled trees.
//
// Properties:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & appear literally)
//  3. Strings are NFC normalized
//  4. Integers only - floats are forbidden in the IR
//  5. No null
//
// Two structurally equal values always marshal to identical bytes, which is
// what makes "byte-identical scheduled trees" a testable property rather
// than a hope.
func MarshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(val)
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case Num:
		return []byte(fmt.Sprintf("%d", int64(val))), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalCanonical(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case []string:
		anys := make([]any, len(val))
		for i, s := range val {
			anys[i] = s
		}
		return MarshalCanonical(anys)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortUTF16(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := MarshalCanonical(val[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString encodes s as a JSON string with NFC normalization
// applied at the serialization boundary and HTML escaping disabled.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

// sortUTF16 sorts keys by their UTF-16 code unit sequences, the canonical
// JSON key order.
func sortUTF16(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a := utf16.Encode([]rune(keys[i]))
		b := utf16.Encode([]rune(keys[j]))
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

// CanonicalMap flattens a kernel into plain maps and slices suitable for
// MarshalCanonical. Expressions render in their deterministic string form.
func (k *Kernel) CanonicalMap() map[string]any {
	inames := make([]any, len(k.Inames))
	for i, in := range k.Inames {
		m := map[string]any{
			"name": in.Name,
			"lo":   in.Lo.String(),
			"hi":   in.Hi.String(),
			"tag":  in.Tag.String(),
		}
		if in.Parent != NoParent {
			m["parent"] = k.Inames[in.Parent].Name
		}
		if in.Retired {
			m["retired"] = true
		}
		if in.Combine != CombineNone {
			m["combine"] = string(in.Combine)
		}
		inames[i] = m
	}

	insns := make([]any, len(k.Insns))
	for i := range k.Insns {
		in := &k.Insns[i]
		m := map[string]any{
			"id":     in.ID,
			"within": append([]string(nil), in.Within...),
			"write":  in.Write.String(),
			"rhs":    in.RHS.String(),
		}
		if len(in.Preds) > 0 {
			preds := make([]any, len(in.Preds))
			for j, p := range in.Preds {
				preds[j] = p.String()
			}
			m["preds"] = preds
		}
		if len(in.After) > 0 {
			m["after"] = append([]string(nil), in.After...)
		}
		insns[i] = m
	}

	args := make([]any, len(k.Args))
	for i, a := range k.Args {
		args[i] = map[string]any{"name": a.Name, "kind": string(a.Kind)}
	}

	history := make([]any, len(k.History))
	for i, rec := range k.History {
		m := map[string]any{"seq": rec.Seq, "op": rec.Op, "iname": rec.Iname}
		if rec.Factor != 0 {
			m["factor"] = rec.Factor
		}
		if rec.Tag != "" {
			m["tag"] = rec.Tag
		}
		if rec.Combine != CombineNone {
			m["combine"] = string(rec.Combine)
		}
		history[i] = m
	}

	return map[string]any{
		"name":    k.Name,
		"params":  append([]string(nil), k.Params...),
		"args":    args,
		"inames":  inames,
		"insns":   insns,
		"history": history,
	}
}
