// Package inmemory is a reference implementation of the storage.Store
// contract backed by plain maps guarded by a mutex. It is sufficient for
// tests and single-process deployments; it is not durable across process
// restarts by itself (nothing here writes to disk).
package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/bpmnkit/engine/pkg/bpmn/runtime"
	"github.com/bpmnkit/engine/pkg/storage"
)

type Store struct {
	mu          sync.RWMutex
	definitions map[string]runtime.ProcessDefinition
	instances   map[string]runtime.ProcessInstance
	userTasks   map[string]map[string]runtime.UserTaskRecord // instanceId -> taskId -> record
	errors      []runtime.ErrorRecord
}

func NewStore() *Store {
	return &Store{
		definitions: make(map[string]runtime.ProcessDefinition),
		instances:   make(map[string]runtime.ProcessInstance),
		userTasks:   make(map[string]map[string]runtime.UserTaskRecord),
	}
}

func (s *Store) SaveProcessDefinition(_ context.Context, def runtime.ProcessDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.definitions[def.Id]
	if ok && existing.Version >= def.Version {
		def.Version = existing.Version + 1
	}
	s.definitions[def.Id] = def
	return nil
}

func (s *Store) LoadProcessDefinition(_ context.Context, processId string) (runtime.ProcessDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[processId]
	if !ok {
		return runtime.ProcessDefinition{}, storage.ErrNotFound
	}
	return def, nil
}

func (s *Store) SaveProcessInstance(_ context.Context, instance runtime.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instance.InstanceId] = instance
	return nil
}

func (s *Store) LoadProcessInstance(_ context.Context, instanceId string) (runtime.ProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceId]
	if !ok {
		return runtime.ProcessInstance{}, storage.ErrNotFound
	}
	return inst, nil
}

func (s *Store) ListActiveInstanceIds(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, inst := range s.instances {
		if inst.Status == runtime.StatusRunning || inst.Status == runtime.StatusSuspendedAtUserTask || inst.Status == runtime.StatusSuspendedAdmin {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) SaveUserTask(_ context.Context, task runtime.UserTaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTask, ok := s.userTasks[task.InstanceId]
	if !ok {
		byTask = make(map[string]runtime.UserTaskRecord)
		s.userTasks[task.InstanceId] = byTask
	}
	byTask[task.TaskId] = task
	return nil
}

func (s *Store) LoadUserTask(_ context.Context, instanceId, taskId string) (runtime.UserTaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byTask, ok := s.userTasks[instanceId]
	if !ok {
		return runtime.UserTaskRecord{}, storage.ErrNotFound
	}
	task, ok := byTask[taskId]
	if !ok {
		return runtime.UserTaskRecord{}, storage.ErrNotFound
	}
	return task, nil
}

func (s *Store) ListPendingUserTasks(_ context.Context, instanceId string) ([]runtime.UserTaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []runtime.UserTaskRecord
	for _, task := range s.userTasks[instanceId] {
		if task.Status == runtime.UserTaskPending {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *Store) SaveError(_ context.Context, record runtime.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, record)
	return nil
}

// NewBatch returns a Batch that, on Flush, applies every queued write
// against this store as a single critical section. The in-memory store
// has no real transaction log, so "rollback on error" here means none of
// the writes are applied if any statement fails to queue; once Flush
// starts applying, the remaining writes are plain map assignments that
// cannot themselves fail.
func (s *Store) NewBatch() storage.Batch {
	return &batch{store: s}
}

type stmt func() error

type batch struct {
	store *Store
	stmts []stmt
}

func (b *batch) SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) {
	b.stmts = append(b.stmts, func() error { return b.store.SaveProcessInstance(ctx, instance) })
}

func (b *batch) SaveUserTask(ctx context.Context, task runtime.UserTaskRecord) {
	b.stmts = append(b.stmts, func() error { return b.store.SaveUserTask(ctx, task) })
}

func (b *batch) SaveError(ctx context.Context, record runtime.ErrorRecord) {
	b.stmts = append(b.stmts, func() error { return b.store.SaveError(ctx, record) })
}

func (b *batch) Flush(_ context.Context) error {
	var errs []error
	for _, run := range b.stmts {
		if err := run(); err != nil {
			errs = append(errs, err)
		}
	}
	b.stmts = nil
	return errors.Join(errs...)
}
