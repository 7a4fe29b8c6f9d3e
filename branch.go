package descargan

import "fmt"

// Branch Which of two class-conditioned heads a batch is routed through
type Branch uint8

const (
	BranchHealthy = Branch(iota)
	BranchIll
)

func (b Branch) String() string {
	switch b {
	case BranchHealthy:
		return "healthy"
	case BranchIll:
		return "ill"
	default:
		return fmt.Sprintf("branch(%d)", uint8(b))
	}
}

// SelectBranch Returns BranchIll if every label of the batch equals illLabel, BranchHealthy otherwise.
//
// The decision is made once per batch: a batch mixing ill and healthy examples goes
// through the healthy head as a whole. Empty batch is considered ill (all of zero labels match).
//
func SelectBranch(labels []int, illLabel int) Branch {
	for _, l := range labels {
		if l != illLabel {
			return BranchHealthy
		}
	}
	return BranchIll
}
