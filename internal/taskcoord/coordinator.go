package taskcoord

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventSink receives state-change notifications. A panic in a sink is
// recovered by the coordinator — a broken subscriber must never wedge the
// state machine.
type EventSink interface {
	Emit(eventType string, data map[string]any)
}

// Coordinator serializes task execution: StartTask fails if a task is
// already RUNNING or AWAITING_INTERACTION, matching the "single RUNNING
// invariant" testable property.
type Coordinator struct {
	mu       sync.Mutex
	current  Snapshot
	sink     EventSink
}

func New(sink EventSink) *Coordinator {
	return &Coordinator{
		current: Snapshot{State: StateIdle},
		sink:    sink,
	}
}

// ErrBusy is wrapped with a human-readable reason describing which phase is
// blocking the new command.
type ErrBusy struct {
	State State
}

func (e *ErrBusy) Error() string {
	if e.State == StateAwaitingInteraction {
		return "a task is waiting on your answer to a question — answer it before starting another"
	}
	return "a task is already running — wait for it to finish before starting another"
}

// StartTask begins a new task for sessionID if and only if no task is
// currently active. It returns the new task id.
func (c *Coordinator) StartTask(sessionID string) (taskID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.HasActiveTask() {
		return "", &ErrBusy{State: c.current.State}
	}

	taskID = uuid.NewString()
	now := time.Now().UTC()
	c.current = Snapshot{
		State:     StateRunning,
		TaskID:    taskID,
		SessionID: sessionID,
		StartedAt: now,
		UpdatedAt: now,
	}
	c.emit("task.started", map[string]any{"task_id": taskID, "session_id": sessionID})
	c.emitStateChanged()
	return taskID, nil
}

// MarkAwaitingInteraction transitions the active task to
// AWAITING_INTERACTION. It is an error to call this when taskID isn't the
// current running task.
func (c *Coordinator) MarkAwaitingInteraction(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.TaskID != taskID || c.current.State != StateRunning {
		return fmt.Errorf("taskcoord: task %q is not the active running task", taskID)
	}
	c.current.State = StateAwaitingInteraction
	c.current.UpdatedAt = time.Now().UTC()
	c.emitStateChanged()
	return nil
}

// ResumeRunning transitions an AWAITING_INTERACTION task back to RUNNING
// once its question has been answered.
func (c *Coordinator) ResumeRunning(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.TaskID != taskID || c.current.State != StateAwaitingInteraction {
		return fmt.Errorf("taskcoord: task %q is not awaiting interaction", taskID)
	}
	c.current.State = StateRunning
	c.current.UpdatedAt = time.Now().UTC()
	c.emitStateChanged()
	return nil
}

// FinishTask transitions the active task to COMPLETED or FAILED and returns
// the coordinator to IDLE, unconditionally — every exit path (success,
// error, panic recovery in the caller) must call this so the coordinator
// never gets stuck.
func (c *Coordinator) FinishTask(taskID string, taskErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.TaskID != taskID {
		return
	}
	if taskErr != nil {
		c.current.State = StateFailed
		c.current.Error = taskErr.Error()
	} else {
		c.current.State = StateCompleted
	}
	c.current.UpdatedAt = time.Now().UTC()
	c.emitStateChanged()
	c.current = Snapshot{State: StateIdle}
}

// Current returns a snapshot of the coordinator's present task.
func (c *Coordinator) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Coordinator) emitStateChanged() {
	c.emit("task.state.changed", map[string]any{
		"task_id": c.current.TaskID,
		"state":   string(c.current.State),
	})
}

func (c *Coordinator) emit(eventType string, data map[string]any) {
	if c.sink == nil {
		return
	}
	defer func() { _ = recover() }()
	c.sink.Emit(eventType, data)
}
