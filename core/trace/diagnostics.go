package trace

// A nil reference means no reference was supplied. A non-nil empty slice is an
// empty reference trace and is compared like any other.

// TraceDiagnostics returns whole-trace findings against reference.
func TraceDiagnostics(events []ObservationEvent, reference []ObservationEvent) []string {
	if len(events) == 0 || reference == nil {
		return []string{}
	}

	diagnostics := make([]string, 0, 2)
	if len(events) != len(reference) {
		diagnostics = append(diagnostics, DiagReferenceLengthMismatch)
	}

	eventIDs := eventIDSequence(events)
	referenceIDs := eventIDSequence(reference)
	if !sameIDSet(eventIDs, referenceIDs) {
		diagnostics = append(diagnostics, DiagReferenceEventIDSetMismatch)
	} else if !sameIDSequence(eventIDs, referenceIDs) {
		diagnostics = append(diagnostics, DiagReferenceOrderMismatch)
	}
	return diagnostics
}

// ApplyTraceDiagnostics returns new events carrying per-event findings. The
// input slice and its events are left untouched.
func ApplyTraceDiagnostics(events []ObservationEvent, reference []ObservationEvent) []ObservationEvent {
	if len(events) == 0 {
		return []ObservationEvent{}
	}

	idCounts := make(map[int64]int, len(events))
	for _, event := range events {
		idCounts[event.EventID]++
	}

	referenceDigestMismatch := map[int64]struct{}{}
	if reference != nil && sameIDSequence(eventIDSequence(events), eventIDSequence(reference)) {
		for index, event := range events {
			if event.Digest != reference[index].Digest {
				referenceDigestMismatch[event.EventID] = struct{}{}
			}
		}
	}

	updated := make([]ObservationEvent, 0, len(events))
	var previousID int64
	hasPrevious := false
	for _, event := range events {
		extra := make([]string, 0, 3)
		if idCounts[event.EventID] > 1 {
			extra = append(extra, DiagDuplicateEventID)
		}
		if hasPrevious {
			if event.EventID <= previousID {
				extra = append(extra, DiagNonMonotonicEventID)
			} else if event.EventID > previousID+1 {
				extra = append(extra, DiagOrderingGap)
			}
		}
		if _, ok := referenceDigestMismatch[event.EventID]; ok {
			extra = append(extra, DiagReferenceDigestMismatch)
		}
		updated = append(updated, event.WithDiagnostics(extra...))
		previousID = event.EventID
		hasPrevious = true
	}
	return updated
}

func eventIDSequence(events []ObservationEvent) []int64 {
	ids := make([]int64, len(events))
	for index, event := range events {
		ids[index] = event.EventID
	}
	return ids
}

func sameIDSequence(left, right []int64) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}

func sameIDSet(left, right []int64) bool {
	leftSet := make(map[int64]struct{}, len(left))
	for _, id := range left {
		leftSet[id] = struct{}{}
	}
	rightSet := make(map[int64]struct{}, len(right))
	for _, id := range right {
		rightSet[id] = struct{}{}
	}
	if len(leftSet) != len(rightSet) {
		return false
	}
	for id := range leftSet {
		if _, ok := rightSet[id]; !ok {
			return false
		}
	}
	return true
}
