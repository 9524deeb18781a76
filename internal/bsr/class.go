package bsr

// Class describes how two loci relate, from how much of each is covered by
// the alignment and how identical the aligned parts are. It is reported
// with each merge and doesn't affect clustering.
type Class string

const (
	// Class1a is near full-length at or above the BSR threshold
	Class1a Class = "1a"
	// Class1c is near full-length below the BSR threshold
	Class1c Class = "1c"
	// Class2b is partial, high identity, one sequence mostly covered
	Class2b Class = "2b"
	// Class3b is partial, high identity
	Class3b Class = "3b"
	// Class4b is partial, low identity, one sequence mostly covered
	Class4b Class = "4b"
	// Class4c is partial, low identity
	Class4c Class = "4c"
	// Class5 is unrelated
	Class5 Class = "5"
)

// Classify an alignment with the pair's BSR. The classes that depend on
// allele-call frequencies (1b, 2a, 3a, 4a) aren't produced.
func Classify(aln *Alignment, score, threshold, identity float64) Class {
	cov := min(aln.QueryCoverage, aln.SubjectCoverage)

	switch {
	case cov >= 0.8:
		if score >= threshold {
			return Class1a
		}
		return Class1c
	case cov >= 0.4:
		if aln.Identity >= identity {
			if aln.IdentCoverage >= 0.8 {
				return Class2b
			}
			return Class3b
		}
		if aln.IdentCoverage >= 0.8 {
			return Class4b
		}
		return Class4c
	}
	return Class5
}
