package hoard

import "sort"

// MergeStreams merges two action logs into one ascending time order,
// collapsing exact duplicates (same time, type, path and data) to a single
// entry. Each input is stably sorted first, so actions sharing a time keep
// their relative order. The inputs are not modified.
func MergeStreams(a, b []Action) []Action {
	a = sortedCopy(a)
	b = sortedCopy(b)

	out := make([]Action, 0, len(a)+len(b))
	// seen holds the identities already emitted at the current timestamp.
	seen := make(map[string]struct{})
	var seenTime int64
	emit := func(x Action) {
		if len(out) == 0 || x.Time != seenTime {
			clear(seen)
			seenTime = x.Time
		}
		id := x.Identity()
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, x)
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Time < a[i].Time {
			emit(b[j])
			j++
		} else {
			emit(a[i])
			i++
		}
	}
	for ; i < len(a); i++ {
		emit(a[i])
	}
	for ; j < len(b); j++ {
		emit(b[j])
	}
	return out
}

// MergeActions merges two replicas' logs. See MergeStreams.
func MergeActions(a, b []Action) []Action {
	return MergeStreams(a, b)
}

func sortedCopy(in []Action) []Action {
	out := make([]Action, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
