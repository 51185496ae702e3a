package protocol

import "fmt"

// taskState is the decoding progress of a single task. A task is complete once
// it has been popped off the stack and its slot zeroed back to taskEmpty.
type taskState uint8

const (
	taskEmpty taskState = iota
	taskAwaitingTag
	taskAwaitingLine
	taskAwaitingBulk
	taskAwaitingChildren
)

var taskStateNames = [...]string{
	taskEmpty:            "empty",
	taskAwaitingTag:      "awaiting-tag",
	taskAwaitingLine:     "awaiting-line",
	taskAwaitingBulk:     "awaiting-bulk-bytes",
	taskAwaitingChildren: "awaiting-children",
}

func (s taskState) String() string {
	if int(s) < len(taskStateNames) {
		return taskStateNames[s]
	}

	return fmt.Sprintf("taskState(%d)", s)
}

// task is one value being decoded. Tasks live in the Reader's arena; parent is
// the index of the aggregate task the value belongs to, -1 for the root.
type task struct {
	state  taskState
	kind   Kind
	parent int

	// size is the payload length while awaiting bulk bytes, and the number of
	// children still to decode while awaiting children.
	size int

	// value accumulates the children of an aggregate.
	value Value
}

func (t task) String() string {
	return fmt.Sprintf("%s(%s, parent=%d, size=%d)", t.state, t.kind, t.parent, t.size)
}

// childCount is how many child values an aggregate header announcing n entries
// is followed by.
func childCount(k Kind, n int) int {
	if k == KindMap {
		return 2 * n
	}

	return n
}
