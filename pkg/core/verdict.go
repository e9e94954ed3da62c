package core

// VerdictCategory classifies how much a backtest result should be
// trusted. Suspicious results keep their fitness for selection but are
// barred from becoming the reported global best.
type VerdictCategory string

const (
	VerdictExcellent  VerdictCategory = "EXCELLENT"
	VerdictGood       VerdictCategory = "GOOD"
	VerdictAcceptable VerdictCategory = "ACCEPTABLE"
	VerdictPoor       VerdictCategory = "POOR"
	VerdictSuspicious VerdictCategory = "SUSPICIOUS"
)

// IsValid reports whether the category is one of the known values.
func (v VerdictCategory) IsValid() bool {
	switch v {
	case VerdictExcellent, VerdictGood, VerdictAcceptable, VerdictPoor, VerdictSuspicious:
		return true
	}
	return false
}

// Trustworthy reports whether a result with this category may replace
// the tracked global best.
func (v VerdictCategory) Trustworthy() bool {
	return v.IsValid() && v != VerdictSuspicious
}

func (v VerdictCategory) String() string { return string(v) }

// JudgeVerdict is the judge's full assessment of one backtest result.
type JudgeVerdict struct {
	Score    float64         `json:"score"`
	Category VerdictCategory `json:"category"`
	Warnings []string        `json:"warnings,omitempty"`
}
