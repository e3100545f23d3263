package register

import (
	"fmt"

	"georeg/internal/canv"
)

// TaskState tracks a frame through the scheduler.
type TaskState string

const (
	TaskQueued       TaskState = "queued"
	TaskSent         TaskState = "sent"
	TaskRetryPending TaskState = "retry-pending"
	TaskSucceeded    TaskState = "succeeded"
	TaskFailed       TaskState = "failed"
)

var taskTransitions = map[TaskState][]TaskState{
	TaskQueued:       {TaskSent},
	TaskSent:         {TaskSucceeded, TaskRetryPending, TaskFailed},
	TaskRetryPending: {TaskSent, TaskFailed},
}

// Task is one frame's passage through the scheduler. Succeeded and
// Failed are terminal; attempts count Sent entries.
type Task struct {
	frame    canv.Frame
	state    TaskState
	attempts int
}

func newTask(frame canv.Frame) *Task {
	return &Task{frame: frame, state: TaskQueued}
}

// State returns the task's current state.
func (t *Task) State() TaskState { return t.state }

// Attempts returns how many times the task has been sent.
func (t *Task) Attempts() int { return t.attempts }

// advance moves the task to the next state, rejecting transitions the
// state machine does not allow.
func (t *Task) advance(next TaskState) error {
	for _, allowed := range taskTransitions[t.state] {
		if next == allowed {
			if next == TaskSent {
				t.attempts++
			}
			t.state = next
			return nil
		}
	}
	return fmt.Errorf("frame %d: invalid task transition %s -> %s", t.frame.Index, t.state, next)
}
