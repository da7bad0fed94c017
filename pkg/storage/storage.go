// Package storage defines the durable persistence contract the executor
// and façade depend on. It is a logical contract only: schema DDL and
// driver wrapping for any concrete backend are out of scope here (see
// pkg/storage/inmemory for a reference implementation used by tests and
// for single-process deployments).
package storage

import (
	"context"

	"github.com/bpmnkit/engine/pkg/bpmn/runtime"
)

// Store is the durable persistence contract. Every method that touches
// more than one logical row internally uses a transaction; callers that
// need several writes to commit atomically use NewBatch instead.
type Store interface {
	SaveProcessDefinition(ctx context.Context, def runtime.ProcessDefinition) error
	LoadProcessDefinition(ctx context.Context, processId string) (runtime.ProcessDefinition, error)

	SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error
	LoadProcessInstance(ctx context.Context, instanceId string) (runtime.ProcessInstance, error)
	ListActiveInstanceIds(ctx context.Context) ([]string, error)

	SaveUserTask(ctx context.Context, task runtime.UserTaskRecord) error
	LoadUserTask(ctx context.Context, instanceId, taskId string) (runtime.UserTaskRecord, error)
	ListPendingUserTasks(ctx context.Context, instanceId string) ([]runtime.UserTaskRecord, error)

	SaveError(ctx context.Context, record runtime.ErrorRecord) error

	NewBatch() Batch
}

// Batch collects a set of writes to be committed together in a single
// transaction, mirroring the "save instance + replace variables" and
// "save user task + write scoped variables" atomic groupings spec calls
// for. Flush runs every queued write inside one transaction, rolling back
// and returning a StoreError-wrapped aggregate on the first failure.
type Batch interface {
	SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance)
	SaveUserTask(ctx context.Context, task runtime.UserTaskRecord)
	SaveError(ctx context.Context, record runtime.ErrorRecord)
	Flush(ctx context.Context) error
}

// ErrNotFound is returned by Load* methods when the requested row does
// not exist.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }
