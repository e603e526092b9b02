package shadow

// MergeAction is the verdict kind returned by Merge (spec.md §4.2).
type MergeAction int

const (
	// MergeDrop discards incoming; existing keeps its queue slot untouched.
	MergeDrop MergeAction = iota
	// MergeReplace swaps the queue slot's request for Replacement[0], in
	// place — the slot does not move to the tail of the FIFO.
	MergeReplace
	// MergeKeep discards incoming; functionally identical to MergeDrop, but
	// named separately because the table calls out "Keep" for the
	// already-authoritative rows (FullShadow/Overwrite*) rather than
	// "Drop" — the distinction is documentation, not behavior.
	MergeKeep
	// MergeSplit replaces the slot with two requests. The current merge
	// table (§4.2) never produces this outcome, but the queue honors it so
	// a future merge-table revision that does isn't a breaking change.
	MergeSplit
)

// MergeResult is the Merger's verdict for one (existing, incoming) pair.
type MergeResult struct {
	Action MergeAction
	// Replacement holds the request(s) that should occupy the slot
	// afterward. Populated for MergeReplace (one entry) and MergeSplit (two
	// entries); nil for MergeDrop/MergeKeep.
	Replacement []Request
}

func isAuthoritative(t RequestTag) bool {
	return t == TagFullShadow || t == TagOverwriteLocal || t == TagOverwriteCloud
}

func isLocalSide(t RequestTag) bool {
	return t == TagLocalUpdate || t == TagLocalDelete
}

func replaceWith(req Request) MergeResult {
	return MergeResult{Action: MergeReplace, Replacement: []Request{req}}
}

// Merge implements the merge table in spec.md §4.2. It is a pure function
// of the two requests' tags only — it never consults Direction; the
// Handler drops direction-violating pushes before they reach the queue.
func Merge(existing, incoming Request) MergeResult {
	et, it := existing.Tag(), incoming.Tag()

	// FullShadow/Overwrite* already queued supersedes anything (I5): every
	// column in those two rows of the table reads "Keep".
	if isAuthoritative(et) {
		return MergeResult{Action: MergeKeep}
	}

	// An authoritative incoming request promotes the slot outright: the
	// FULL column reads "FULL" for every non-authoritative existing row,
	// and the same holds for an incoming Overwrite* by construction (both
	// are one-shot reconciles seeded by the Handler, never merged further).
	if isAuthoritative(it) {
		return replaceWith(incoming)
	}

	// Both requests now name an edge (LocalUpdate/LocalDelete/CloudUpdate/
	// CloudDelete). Requests on opposite sides of the same shadow are a
	// conflict the Merger can't resolve locally — promote to FullShadow.
	if isLocalSide(et) != isLocalSide(it) {
		return replaceWith(&FullShadowRequest{ShadowKey: existing.Key()})
	}

	// Same side: an update/update or delete/delete pair of the same tag
	// collapses to the newest, except delete-after-delete which is already
	// fully represented by the existing request.
	if et == it && (et == TagLocalDelete || et == TagCloudDelete) {
		return MergeResult{Action: MergeDrop}
	}

	return replaceWith(incoming)
}
