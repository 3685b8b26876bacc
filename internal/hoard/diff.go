package hoard

// DiffReporter receives one action per divergence found by Diff, together
// with the node in each tree it was derived from (either may be nil).
type DiffReporter func(a Action, this, other *Node)

// Diff compares n (at path) against other and reports the actions that
// would transform n into other. Per node it reports, in order: an alarm
// change (A or C), a constraint change (X), a value change (E); then
// children missing from other (D) and children missing from n (I, with
// the whole subtree). Renames and moves are reported as delete + insert.
//
// The root cannot be addressed by an action, so a child missing directly
// under the root is reported as the N/A/X sequence that rebuilds it.
func (n *Node) Diff(path Path, other *Node, report DiffReporter) {
	if len(path) > 0 {
		n.diffAttributes(path, other, report)
	}
	if n.kind != KindCollection || other.kind != KindCollection {
		return
	}
	for _, k := range n.Keys() {
		mine := n.children[k]
		theirs := other.children[k]
		childPath := path.Child(k)
		switch {
		case theirs == nil:
			report(Action{Type: ActionDelete, Path: childPath, Time: other.Time}, mine, nil)
		case mine.kind != theirs.kind:
			report(Action{Type: ActionDelete, Path: childPath, Time: theirs.Time}, mine, theirs)
			reportInsert(path, k, theirs, report)
		default:
			mine.Diff(childPath, theirs, report)
		}
	}
	for _, k := range other.Keys() {
		if _, ok := n.children[k]; !ok {
			reportInsert(path, k, other.children[k], report)
		}
	}
}

func (n *Node) diffAttributes(path Path, other *Node, report DiffReporter) {
	if !alarmEqual(n.Alarm, other.Alarm) {
		if other.Alarm == nil {
			report(Action{Type: ActionCancel, Path: path, Time: other.Time}, n, other)
		} else {
			report(Action{Type: ActionAlarm, Path: path, Time: other.Time, Data: *other.Alarm}, n, other)
		}
	}
	if !constraintsEqual(n.Constraints, other.Constraints) {
		a := Action{Type: ActionConstrain, Path: path, Time: other.Time}
		if other.Constraints != nil {
			a.Data = *other.Constraints
		}
		report(a, n, other)
	}
	if n.kind == KindLeaf && other.kind == KindLeaf && n.value != other.value {
		report(Action{Type: ActionEdit, Path: path, Time: other.Time, Data: Text(other.value)}, n, other)
	}
}

func reportInsert(parent Path, key string, theirs *Node, report DiffReporter) {
	if len(parent) > 0 {
		report(Action{
			Type: ActionInsert,
			Path: parent,
			Time: theirs.Time,
			Data: Subtree{Name: key, Node: theirs.Clone()},
		}, nil, theirs)
		return
	}
	emitTree(Path{key}, theirs, func(a Action) { report(a, nil, theirs) })
}
