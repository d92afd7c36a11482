package discovery

import "github.com/steveyegge/steward/internal/types"

// Partitioned is the result of splitting one scan
type Partitioned struct {
	// Autonomous holds execution candidates in discovery order, truncated to the cap
	Autonomous []types.Initiative
	// ForUser holds items meant for a human; they are reported, never executed
	ForUser []types.Initiative
	// Discarded counts items that were neither, for this cycle
	Discarded int
	// Overflow counts eligible candidates cut by the cap
	Overflow int
}

// Partition splits initiatives for one cycle.
//
// An initiative is an autonomous candidate when Autonomous is set, ForUser is
// not, and its priority is at least minPriority. It is for the user when
// ForUser is set and Autonomous is not. An item flagged both ways is
// discarded. Candidates keep discovery order and at most maxExecutions are
// returned.
func Partition(items []types.Initiative, minPriority, maxExecutions int) Partitioned {
	var p Partitioned

	for _, item := range items {
		switch {
		case item.ForUser && item.Autonomous:
			p.Discarded++
		case item.ForUser:
			p.ForUser = append(p.ForUser, item)
		case item.Autonomous && item.Priority >= minPriority:
			if len(p.Autonomous) < maxExecutions {
				p.Autonomous = append(p.Autonomous, item)
			} else {
				p.Overflow++
			}
		default:
			p.Discarded++
		}
	}

	return p
}
