// Package runtime holds the durable, mutable state of a running process
// instance, kept deliberately free of in-flight execution machinery: only
// fields that must survive a crash and be resumable live here. Transient
// branch bookkeeping for an in-progress parallel fork lives in the
// executor's runFork/runBranch instead (see pkg/bpmn/gateway.go).
package runtime

import "time"

// Status is the lifecycle state of a ProcessInstance.
type Status string

const (
	StatusRunning             Status = "RUNNING"
	StatusSuspendedAtUserTask Status = "SUSPENDED_AT_USER_TASK"
	StatusSuspendedAdmin      Status = "SUSPENDED_ADMIN"
	StatusCompleted           Status = "COMPLETED"
	StatusTerminated          Status = "TERMINATED"
	StatusFailed              Status = "FAILED"
)

// ProcessDefinition pairs a process's BPMN XML source with its deployment
// metadata. Definitions are immutable after parse and shared by every
// instance created from them; instances reference a definition by id, not
// by pointer, so a definition may be reloaded without invalidating live
// instances.
type ProcessDefinition struct {
	Id         string
	BpmnXml    []byte
	Version    int32
	DeployedAt time.Time
}

// ProcessInstance is the durable execution record of one running process.
type ProcessInstance struct {
	InstanceId     string
	ProcessId      string
	CurrentElement string
	Variables      map[string]string
	Status         Status

	// PendingJoins tracks, per parallel-gateway join id, how many
	// incoming branches are still outstanding. Populated only while a
	// fork spawned by that gateway is in flight; absent otherwise.
	PendingJoins map[string]int

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// UserTaskStatus is the lifecycle of a single pending human task.
type UserTaskStatus string

const (
	UserTaskPending   UserTaskStatus = "PENDING"
	UserTaskCompleted UserTaskStatus = "COMPLETED"
)

// UserTaskRecord is one outstanding (or completed) human task row. At most
// one PENDING row may exist per (InstanceId, TaskId).
type UserTaskRecord struct {
	InstanceId  string
	TaskId      string
	FormKey     string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Status      UserTaskStatus

	// VariablesSnapshot and JoinTarget are set only when this task was
	// reached inside a parallel-gateway branch: they let CompleteTask
	// resume that specific branch (rather than the instance as a whole)
	// without any other transient branch state surviving in memory.
	VariablesSnapshot map[string]string
	JoinTarget        string
}

// ErrorRecord is an append-only log entry written when a node handler
// fails and the instance transitions to FAILED.
type ErrorRecord struct {
	InstanceId string
	Message    string
	OccurredAt time.Time
}

// Snapshot is the externally visible view of a ProcessInstance, returned
// by GetProcessState.
type Snapshot struct {
	InstanceId     string            `json:"instanceId"`
	Status         Status            `json:"status"`
	CurrentElement string            `json:"currentElement"`
	Variables      map[string]string `json:"variables"`
}

// ToSnapshot projects a ProcessInstance into its wire representation.
func (pi *ProcessInstance) ToSnapshot() Snapshot {
	vars := make(map[string]string, len(pi.Variables))
	for k, v := range pi.Variables {
		vars[k] = v
	}
	return Snapshot{
		InstanceId:     pi.InstanceId,
		Status:         pi.Status,
		CurrentElement: pi.CurrentElement,
		Variables:      vars,
	}
}
