package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/funcdeck/funcdeck"
)

// Wire status values used by the simulated lifecycle.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusSuccess    = "success"
	statusFailed     = "failed"
)

// executionBudget bounds one simulated execution.
const executionBudget = 30 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Function registry ---

type functionSummary struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Runtime     string     `json:"runtime"`
	Description string     `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListFunctions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	out := make([]functionSummary, 0, len(records))
	for _, rec := range records {
		createdAt := rec.CreatedAt
		out = append(out, functionSummary{
			ID:          rec.ID,
			Name:        rec.Name,
			Runtime:     rec.Runtime,
			Description: rec.Description,
			CreatedAt:   &createdAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createFunctionRequest struct {
	Name        string          `json:"name"`
	Runtime     string          `json:"runtime"`
	SourceCode  string          `json:"source_code"`
	Description string          `json:"description"`
	SampleEvent json.RawMessage `json:"sample_event"`
}

func (s *Server) handleCreateFunction(w http.ResponseWriter, r *http.Request) {
	var req createFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("decoding request: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_FUNCTION", "function name is required")
		return
	}
	runtime, err := funcdeck.ParseRuntimeTag(req.Runtime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FUNCTION", err.Error())
		return
	}
	source := req.SourceCode
	if source == "" {
		source = runtime.Template()
	}
	if len(req.SampleEvent) > 0 && !json.Valid(req.SampleEvent) {
		writeError(w, http.StatusBadRequest, "INVALID_FUNCTION", "sample event must be valid JSON")
		return
	}

	created, err := s.store.CreateFunction(r.Context(), FunctionRecord{
		Name:        req.Name,
		Runtime:     runtime.String(),
		SourceCode:  source,
		Description: req.Description,
		SampleEvent: req.SampleEvent,
		CreatedAt:   s.now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.logger.Info("function created", "id", created.ID, "name", created.Name, "runtime", created.Runtime)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, found, err := s.store.GetFunction(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("function %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteFunction(r.Context(), id); err != nil {
		if errors.Is(err, ErrFunctionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("function %d not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.logger.Info("function deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Invocation service ---

type invokeRequest struct {
	Input json.RawMessage `json:"input"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("decoding request: %v", err))
		return
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "input event must be valid JSON")
		return
	}

	fn, found, err := s.store.GetFunction(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("function %d not found", id))
		return
	}

	rec, err := s.store.InsertInvocation(r.Context(), InvocationRecord{
		FunctionID: fn.ID,
		Status:     statusQueued,
		Input:      req.Input,
		InvokedAt:  s.now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	s.runs.Add(1)
	go s.runInvocation(fn, rec)

	s.logger.Info("invocation accepted", "function_id", fn.ID, "invocation_id", rec.ID)
	writeJSON(w, http.StatusAccepted, invocationResponse(rec))
}

// runInvocation drives one stored invocation through the simulated
// queued -> processing -> terminal lifecycle.
func (s *Server) runInvocation(fn FunctionRecord, rec InvocationRecord) {
	defer s.runs.Done()

	ctx, cancel := context.WithTimeout(context.Background(), executionBudget)
	defer cancel()

	started := s.now()
	logged := started
	rec.Status = statusProcessing
	rec.LoggedAt = &logged
	if err := s.updateInvocation(ctx, rec); err != nil {
		return
	}

	result, execErr := s.executor.Execute(ctx, fn, rec.Input)
	finished := s.now()
	rec.DurationMs = finished.Sub(started).Milliseconds()
	rec.LoggedAt = &finished
	if execErr != nil {
		rec.Status = statusFailed
		rec.ErrorMessage = execErr.Error()
	} else {
		rec.Status = statusSuccess
		rec.Result = result
	}
	_ = s.updateInvocation(ctx, rec)
}

func (s *Server) updateInvocation(ctx context.Context, rec InvocationRecord) error {
	if err := s.store.UpdateInvocation(ctx, rec); err != nil {
		// The record may have been pruned or its function deleted mid-run.
		s.logger.Warn("updating invocation failed", "invocation_id", rec.ID, "error", err)
		return err
	}
	return nil
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	functionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	invocationID, ok := pathID(w, r, "invocation_id")
	if !ok {
		return
	}
	rec, found, err := s.store.GetInvocation(r.Context(), functionID, invocationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("invocation %d of function %d not found", invocationID, functionID))
		return
	}
	writeJSON(w, http.StatusOK, invocationResponse(rec))
}

type invocationListEntry struct {
	ID           int64           `json:"id"`
	FunctionID   int64           `json:"function_id"`
	Status       string          `json:"status,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	InvokedAt    *time.Time      `json:"invoked_at,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	functionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	records, err := s.store.ListInvocations(r.Context(), functionID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	out := make([]invocationListEntry, 0, len(records))
	for _, rec := range records {
		invokedAt := rec.InvokedAt
		out = append(out, invocationListEntry{
			ID:           rec.ID,
			FunctionID:   rec.FunctionID,
			Status:       rec.Status,
			DurationMs:   rec.DurationMs,
			InvokedAt:    &invokedAt,
			Input:        rec.Input,
			Output:       rec.Result,
			ErrorMessage: rec.ErrorMessage,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// invocationResponse maps a stored record onto the wire shape shared by the
// invoke and status endpoints.
func invocationResponse(rec InvocationRecord) funcdeck.InvocationResult {
	return funcdeck.InvocationResult{
		InvocationID: rec.ID,
		Status:       rec.Status,
		Result:       rec.Result,
		ErrorMessage: rec.ErrorMessage,
		DurationMs:   rec.DurationMs,
		LoggedAt:     rec.LoggedAt,
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}
