package trace

// VocabularyVersion names the frozen diagnostics set below. Adding a tag
// requires a new version.
const VocabularyVersion = "v1"

const (
	DiagDuplicateEventID            = "duplicate_event_id_observed"
	DiagNonMonotonicEventID         = "non_monotonic_event_id_observed"
	DiagOrderingGap                 = "ordering_gap_observed"
	DiagCanonLenMismatch            = "canon_len_mismatch_observed"
	DiagDigestMismatch              = "digest_mismatch_observed"
	DiagReferenceLengthMismatch     = "reference_length_mismatch_observed"
	DiagReferenceEventIDSetMismatch = "reference_event_id_set_mismatch_observed"
	DiagReferenceOrderMismatch      = "reference_order_mismatch_observed"
	DiagReferenceDigestMismatch     = "reference_digest_mismatch_observed"
)

var vocabularyV1 = [...]string{
	DiagDuplicateEventID,
	DiagNonMonotonicEventID,
	DiagOrderingGap,
	DiagCanonLenMismatch,
	DiagDigestMismatch,
	DiagReferenceLengthMismatch,
	DiagReferenceEventIDSetMismatch,
	DiagReferenceOrderMismatch,
	DiagReferenceDigestMismatch,
}

// VocabularyV1 returns a copy of every tag the diagnostics pass can emit.
func VocabularyV1() []string {
	out := make([]string, len(vocabularyV1))
	copy(out, vocabularyV1[:])
	return out
}

func IsKnownDiagnostic(tag string) bool {
	for _, known := range vocabularyV1 {
		if known == tag {
			return true
		}
	}
	return false
}
