package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and throwaway dev sessions.
type MemoryStore struct {
	mu          sync.RWMutex
	functions   map[int64]FunctionRecord
	invocations map[int64]InvocationRecord
	funcOrder   []int64
	nextFunc    int64
	nextInv     int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		functions:   make(map[int64]FunctionRecord),
		invocations: make(map[int64]InvocationRecord),
		nextFunc:    1,
		nextInv:     1,
	}
}

func (s *MemoryStore) ListFunctions(ctx context.Context) ([]FunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FunctionRecord, 0, len(s.funcOrder))
	for _, id := range s.funcOrder {
		if rec, ok := s.functions[id]; ok {
			out = append(out, cloneFunction(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) GetFunction(ctx context.Context, id int64) (FunctionRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return FunctionRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.functions[id]
	if !ok {
		return FunctionRecord{}, false, nil
	}
	return cloneFunction(rec), true, nil
}

func (s *MemoryStore) CreateFunction(ctx context.Context, rec FunctionRecord) (FunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return FunctionRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextFunc
	s.nextFunc++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.functions[rec.ID] = cloneFunction(rec)
	s.funcOrder = append(s.funcOrder, rec.ID)
	return rec, nil
}

func (s *MemoryStore) DeleteFunction(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.functions[id]; !ok {
		return ErrFunctionNotFound
	}
	delete(s.functions, id)
	for i, fid := range s.funcOrder {
		if fid == id {
			s.funcOrder = append(s.funcOrder[:i], s.funcOrder[i+1:]...)
			break
		}
	}
	for invID, inv := range s.invocations {
		if inv.FunctionID == id {
			delete(s.invocations, invID)
		}
	}
	return nil
}

func (s *MemoryStore) InsertInvocation(ctx context.Context, rec InvocationRecord) (InvocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return InvocationRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextInv
	s.nextInv++
	if rec.InvokedAt.IsZero() {
		rec.InvokedAt = time.Now().UTC()
	}
	s.invocations[rec.ID] = cloneInvocation(rec)
	return rec, nil
}

func (s *MemoryStore) UpdateInvocation(ctx context.Context, rec InvocationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invocations[rec.ID]; !ok {
		return ErrInvocationNotFound
	}
	s.invocations[rec.ID] = cloneInvocation(rec)
	return nil
}

func (s *MemoryStore) GetInvocation(ctx context.Context, functionID, id int64) (InvocationRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return InvocationRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.invocations[id]
	if !ok || rec.FunctionID != functionID {
		return InvocationRecord{}, false, nil
	}
	return cloneInvocation(rec), true, nil
}

func (s *MemoryStore) ListInvocations(ctx context.Context, functionID int64, limit int) ([]InvocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []InvocationRecord
	for _, rec := range s.invocations {
		if rec.FunctionID == functionID {
			out = append(out, cloneInvocation(rec))
		}
	}
	// Newest first.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID > out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for id, rec := range s.invocations {
		if rec.InvokedAt.Before(cutoff) {
			delete(s.invocations, id)
			pruned++
		}
	}
	return pruned, nil
}

var _ Store = (*MemoryStore)(nil)

func cloneFunction(in FunctionRecord) FunctionRecord {
	out := in
	out.SampleEvent = append(json.RawMessage(nil), in.SampleEvent...)
	return out
}

func cloneInvocation(in InvocationRecord) InvocationRecord {
	out := in
	out.Input = append(json.RawMessage(nil), in.Input...)
	out.Result = append(json.RawMessage(nil), in.Result...)
	if in.LoggedAt != nil {
		loggedAt := *in.LoggedAt
		out.LoggedAt = &loggedAt
	}
	return out
}
