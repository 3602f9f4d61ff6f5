package broadcast

import "sort"

// Plan is what one run delivers, built without any I/O.
type Plan struct {
	Date       string
	Item       string
	Recipients []int64
}

func (p Plan) Empty() bool {
	return p.Item == "" || len(p.Recipients) == 0
}

// BuildPlan picks one item with intn and addresses every distinct subscriber once.
func BuildPlan(date string, subscribers []int64, items []string, intn func(n int) int) Plan {
	plan := Plan{Date: date}
	if len(items) > 0 {
		plan.Item = items[intn(len(items))]
	}
	seen := make(map[int64]struct{}, len(subscribers))
	plan.Recipients = make([]int64, 0, len(subscribers))
	for _, id := range subscribers {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		plan.Recipients = append(plan.Recipients, id)
	}
	sort.Slice(plan.Recipients, func(i, j int) bool { return plan.Recipients[i] < plan.Recipients[j] })
	return plan
}
