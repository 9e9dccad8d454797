// Package jsonpatch computes RFC 6902 style patches between two JSON snapshots.
//
// Objects are diffed key by key, arrays are replaced as a whole when they differ.
// Path segments are joined with "/" and are not escaped.
package jsonpatch

import (
	"bytes"
	"errors"
	"sort"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonvalue"
)

const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
)

// ErrInvalidDocument is returned when one of the snapshots is not valid JSON.
var ErrInvalidDocument = errors.New("patch document is not valid json")

// Operation is a single patch operation. Value is unused for remove operations.
type Operation struct {
	Op    string
	Path  string
	Value any
}

type valueOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type removeOperation struct {
	Op   string `json:"op"`
	Path string `json:"path"`
}

// MarshalJSON encodes the operation with "value" for add and replace, without it for remove.
func (o Operation) MarshalJSON() ([]byte, error) {
	if o.Op == OpRemove {
		return jsonvalue.Marshal(removeOperation{Op: o.Op, Path: o.Path})
	}

	return jsonvalue.Marshal(valueOperation{Op: o.Op, Path: o.Path, Value: o.Value})
}

// Patch is an ordered list of operations.
type Patch []Operation

// IsEmpty reports whether the patch has no operations.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}

// GeneratePatch diffs two JSON documents.
func GeneratePatch(oldJSON, newJSON []byte) (Patch, error) {
	oldValue, err := jsonvalue.Decode(oldJSON)
	if err != nil {
		return nil, errors.Join(ErrInvalidDocument, err)
	}

	newValue, err := jsonvalue.Decode(newJSON)
	if err != nil {
		return nil, errors.Join(ErrInvalidDocument, err)
	}

	return GeneratePatchFromValues(oldValue, newValue), nil
}

// GeneratePatchFromValues diffs two decoded JSON trees (see jsonvalue.Decode).
//
// For values of different kinds a single replace is emitted. For objects, removes of vanished keys
// come first, then adds of new keys, then the recursive diffs of shared keys, each group in sorted key order.
func GeneratePatchFromValues(oldValue, newValue any) Patch {
	patch := make(Patch, 0)
	diff(oldValue, newValue, "", &patch)

	return patch
}

// JoinPath appends key to base. The key is not escaped.
func JoinPath(base, key string) string {
	if base == "" {
		return "/" + key
	}

	return base + "/" + key
}

func diff(oldValue, newValue any, path string, patch *Patch) {
	oldKind := jsonvalue.KindOf(oldValue)
	newKind := jsonvalue.KindOf(newValue)

	if oldKind != newKind {
		*patch = append(*patch, Operation{Op: OpReplace, Path: path, Value: newValue})
		return
	}

	if oldKind == jsonvalue.KindObject {
		diffObjects(oldValue.(map[string]any), newValue.(map[string]any), path, patch)
		return
	}

	if !sameText(oldValue, newValue) {
		*patch = append(*patch, Operation{Op: OpReplace, Path: path, Value: newValue})
	}
}

func diffObjects(oldObject, newObject map[string]any, path string, patch *Patch) {
	for _, key := range sortedKeys(oldObject) {
		if _, kept := newObject[key]; !kept {
			*patch = append(*patch, Operation{Op: OpRemove, Path: JoinPath(path, key)})
		}
	}

	newKeys := sortedKeys(newObject)

	for _, key := range newKeys {
		if _, existed := oldObject[key]; !existed {
			*patch = append(*patch, Operation{Op: OpAdd, Path: JoinPath(path, key), Value: newObject[key]})
		}
	}

	for _, key := range newKeys {
		if oldChild, existed := oldObject[key]; existed {
			diff(oldChild, newObject[key], JoinPath(path, key), patch)
		}
	}
}

// sameText compares the canonical serializations, which is how arrays and scalars are diffed.
func sameText(a, b any) bool {
	aText, aErr := jsonvalue.Marshal(a)
	bText, bErr := jsonvalue.Marshal(b)

	if aErr != nil || bErr != nil {
		return false
	}

	return bytes.Equal(aText, bText)
}

func sortedKeys(object map[string]any) []string {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
