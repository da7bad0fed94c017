package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bpmnkit/engine/pkg/bpmn"
)

type handlers struct {
	engine *bpmn.Engine
	logger *zap.Logger
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	kind, _ := bpmn.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case bpmn.KindNotFound:
		status = http.StatusNotFound
	case bpmn.KindConflict:
		status = http.StatusConflict
	case bpmn.KindValidationError, bpmn.KindInvalidDefinition, bpmn.KindParseError:
		status = http.StatusBadRequest
	}
	h.logger.Warn("request failed", zap.Error(err), zap.String("kind", string(kind)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Kind: string(kind), Message: err.Error()})
}

func (h *handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) startProcess(w http.ResponseWriter, r *http.Request) {
	xmlBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	initData := []byte(r.URL.Query().Get("initData"))
	instanceId, err := h.engine.StartProcess(r.Context(), xmlBytes, initData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"instanceId": instanceId})
}

func (h *handlers) startProcessById(w http.ResponseWriter, r *http.Request) {
	initData, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	instanceId, err := h.engine.StartProcessByID(r.Context(), chi.URLParam(r, "processId"), initData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"instanceId": instanceId})
}

func (h *handlers) getState(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.GetProcessState(r.Context(), chi.URLParam(r, "instanceId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, snapshot)
}

func (h *handlers) getActiveTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.engine.GetActiveTasks(r.Context(), chi.URLParam(r, "instanceId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, tasks)
}

func (h *handlers) completeTask(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = h.engine.CompleteTask(r.Context(), chi.URLParam(r, "instanceId"), chi.URLParam(r, "taskId"), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) signalEvent(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = h.engine.SignalEvent(r.Context(), chi.URLParam(r, "instanceId"), chi.URLParam(r, "eventId"), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) suspend(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SuspendProcess(r.Context(), chi.URLParam(r, "instanceId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResumeProcess(r.Context(), chi.URLParam(r, "instanceId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) terminate(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.TerminateProcess(r.Context(), chi.URLParam(r, "instanceId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listActiveInstances(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.GetActiveInstances(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, ids)
}
