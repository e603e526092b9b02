package shadow

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// strippedFields are excluded from the "is this document changed"
// comparison (spec.md §4.4.6): version, timestamp, and metadata never
// participate in the equality decision.
var strippedFields = []string{"version", "timestamp", "metadata"}

// ExtractVersion reads the numeric "version" field from a shadow document.
// Returns ok=false if the field is absent or not a number.
func ExtractVersion(body []byte) (version uint64, ok bool) {
	res := gjson.GetBytes(body, "version")
	if !res.Exists() || res.Type != gjson.Number {
		return 0, false
	}

	return res.Uint(), true
}

// SetVersion returns a copy of body with its "version" field set to v.
func SetVersion(body []byte, v uint64) ([]byte, error) {
	out, err := sjson.SetBytes(body, "version", v)
	if err != nil {
		return nil, fmt.Errorf("shadow: setting version: %w", err)
	}

	return out, nil
}

// canonicalize strips version/timestamp/metadata and re-marshals with
// sorted keys and numbers preserved lexically (json.Number), per the
// equality semantics of spec.md §4.4.6.
func canonicalize(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("shadow: decoding document: %w", err)
	}

	for _, f := range strippedFields {
		delete(m, f)
	}

	// encoding/json.Marshal sorts map[string]any keys lexically, which is
	// the "keys sorted" half of the canonicalization contract; json.Number
	// round-trips without reformatting, satisfying "numbers preserved
	// lexically".
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("shadow: re-marshaling document: %w", err)
	}

	return out, nil
}

// DocumentsEqual reports whether a and b are the same document once
// version, timestamp, and metadata are stripped. Nil/empty bodies compare
// equal to each other.
func DocumentsEqual(a, b []byte) (bool, error) {
	ca, err := canonicalize(a)
	if err != nil {
		return false, err
	}

	cb, err := canonicalize(b)
	if err != nil {
		return false, err
	}

	return bytes.Equal(ca, cb), nil
}

// ApplyNullLeafMerge applies patch atop base using RFC 7396 JSON Merge
// Patch semantics: a null leaf in patch deletes the corresponding key in
// base, any other leaf overwrites it. This is the "delete-null-leaves"
// merge semantics spec.md §3/§4.4.1 describes for local-update bodies.
func ApplyNullLeafMerge(base, patch []byte) ([]byte, error) {
	if len(base) == 0 {
		base = []byte("{}")
	}

	out, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return nil, fmt.Errorf("shadow: applying merge patch: %w", err)
	}

	return out, nil
}

// DiffMergePatch computes the RFC 7396 merge patch that transforms from
// into to: added/changed leaves appear verbatim, removed leaves appear as
// null. Used by the FullShadow three-way reconcile (§4.4.5) to compute
// Δlocal and Δcloud against the last synced document.
func DiffMergePatch(from, to []byte) ([]byte, error) {
	if len(from) == 0 {
		from = []byte("{}")
	}

	if len(to) == 0 {
		to = []byte("{}")
	}

	out, err := jsonpatch.CreateMergePatch(from, to)
	if err != nil {
		return nil, fmt.Errorf("shadow: diffing documents: %w", err)
	}

	return out, nil
}
