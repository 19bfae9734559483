// Package integrity classifies corruption in stored entities and performs
// best-effort, policy-controlled repair. Detection is pure; repair is
// copy-on-write and never mutates its inputs.
package integrity

// Severity ranks how serious a detected defect is. The ordering is the
// integer ordering of the constants; comparisons must go through ints,
// never through the label strings.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// AtMost reports whether s is no more severe than limit.
func (s Severity) AtMost(limit Severity) bool {
	return s <= limit
}
