package shadow

import "testing"

func TestDocumentsEqualIgnoresStrippedFields(t *testing.T) {
	t.Parallel()

	a := []byte(`{"state":{"on":true},"version":1,"timestamp":100,"metadata":{"on":{"timestamp":100}}}`)
	b := []byte(`{"version":2,"timestamp":200,"state":{"on":true}}`)

	equal, err := DocumentsEqual(a, b)
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if !equal {
		t.Error("DocumentsEqual = false, want true (only stripped fields differ)")
	}
}

func TestDocumentsEqualDetectsRealDifference(t *testing.T) {
	t.Parallel()

	a := []byte(`{"state":{"on":true},"version":1}`)
	b := []byte(`{"state":{"on":false},"version":1}`)

	equal, err := DocumentsEqual(a, b)
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if equal {
		t.Error("DocumentsEqual = true, want false (state.on differs)")
	}
}

func TestDocumentsEqualNilAndEmptyBody(t *testing.T) {
	t.Parallel()

	equal, err := DocumentsEqual(nil, []byte(``))
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if !equal {
		t.Error("DocumentsEqual(nil, \"\") = false, want true")
	}
}

func TestExtractVersionRoundTrip(t *testing.T) {
	t.Parallel()

	body := []byte(`{"state":{}}`)

	updated, err := SetVersion(body, 7)
	if err != nil {
		t.Fatalf("SetVersion: %v", err)
	}

	v, ok := ExtractVersion(updated)
	if !ok {
		t.Fatal("ExtractVersion: ok = false, want true")
	}

	if v != 7 {
		t.Errorf("ExtractVersion = %d, want 7", v)
	}
}

func TestExtractVersionMissing(t *testing.T) {
	t.Parallel()

	_, ok := ExtractVersion([]byte(`{"state":{}}`))
	if ok {
		t.Error("ExtractVersion on document without version: ok = true, want false")
	}
}

// TestApplyNullLeafMergeDeletesNullLeaves checks the RFC 7396 semantics
// spec.md §4.4.1 relies on: a null leaf in the patch removes the key.
func TestApplyNullLeafMergeDeletesNullLeaves(t *testing.T) {
	t.Parallel()

	base := []byte(`{"state":{"on":true,"brightness":80}}`)
	patch := []byte(`{"state":{"brightness":null}}`)

	merged, err := ApplyNullLeafMerge(base, patch)
	if err != nil {
		t.Fatalf("ApplyNullLeafMerge: %v", err)
	}

	equal, err := DocumentsEqual(merged, []byte(`{"state":{"on":true}}`))
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if !equal {
		t.Errorf("merged = %s, want brightness removed", merged)
	}
}

func TestApplyNullLeafMergeOverwritesLeaf(t *testing.T) {
	t.Parallel()

	base := []byte(`{"state":{"on":true}}`)
	patch := []byte(`{"state":{"on":false}}`)

	merged, err := ApplyNullLeafMerge(base, patch)
	if err != nil {
		t.Fatalf("ApplyNullLeafMerge: %v", err)
	}

	equal, err := DocumentsEqual(merged, []byte(`{"state":{"on":false}}`))
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if !equal {
		t.Errorf("merged = %s, want state.on=false", merged)
	}
}

// TestDiffMergePatchThenApplyRoundTrips checks that diffing from->to and
// applying the diff atop from reproduces to, the operation the FullShadow
// three-way reconcile composes (§4.4.5).
func TestDiffMergePatchThenApplyRoundTrips(t *testing.T) {
	t.Parallel()

	from := []byte(`{"state":{"on":true,"brightness":80}}`)
	to := []byte(`{"state":{"on":true,"color":"red"}}`)

	delta, err := DiffMergePatch(from, to)
	if err != nil {
		t.Fatalf("DiffMergePatch: %v", err)
	}

	applied, err := ApplyNullLeafMerge(from, delta)
	if err != nil {
		t.Fatalf("ApplyNullLeafMerge: %v", err)
	}

	equal, err := DocumentsEqual(applied, to)
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if !equal {
		t.Errorf("diff-then-apply = %s, want %s", applied, to)
	}
}

func TestDiffMergePatchNoChangeIsEmptyObject(t *testing.T) {
	t.Parallel()

	doc := []byte(`{"state":{"on":true}}`)

	delta, err := DiffMergePatch(doc, doc)
	if err != nil {
		t.Fatalf("DiffMergePatch: %v", err)
	}

	equal, err := DocumentsEqual(delta, []byte(`{}`))
	if err != nil {
		t.Fatalf("DocumentsEqual: %v", err)
	}

	if !equal {
		t.Errorf("delta for identical documents = %s, want {}", delta)
	}
}
