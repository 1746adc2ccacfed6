package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// maxCodeBody caps the size of saved code.
const maxCodeBody = 1 << 20

// ProgressStore is the subset of progress.Store the gateway uses.
type ProgressStore interface {
	SaveCode(ctx context.Context, moduleID, exerciseID, code string) error
	GetSavedCode(ctx context.Context, moduleID, exerciseID string) (string, bool, error)
	ClearCode(ctx context.Context, moduleID, exerciseID string) error
	MarkCompleted(ctx context.Context, moduleID, exerciseID string) error
	MarkIncomplete(ctx context.Context, moduleID, exerciseID string) error
	IsCompleted(ctx context.Context, moduleID, exerciseID string) (bool, error)
	GetCompletedCount(ctx context.Context, moduleID string) (int, error)
	Reset(ctx context.Context, moduleID, exerciseID string) error
}

// SavedCodeResponse is returned by GET .../code.
type SavedCodeResponse struct {
	Code  string `json:"code"`
	Found bool   `json:"found"`
}

// SaveCodeRequest is the body of PUT .../code.
type SaveCodeRequest struct {
	Code string `json:"code"`
}

// CompletedResponse is returned by the completion endpoints.
type CompletedResponse struct {
	Completed bool `json:"completed"`
}

// CountResponse is returned by GET /progress/{module}/count.
type CountResponse struct {
	Module    string `json:"module"`
	Completed int    `json:"completed"`
}

// ProgressHandlers serves saved code and completion state.
type ProgressHandlers struct {
	store ProgressStore
}

// NewProgressHandlers creates progress handlers backed by store.
func NewProgressHandlers(store ProgressStore) *ProgressHandlers {
	return &ProgressHandlers{store: store}
}

// Register mounts the progress routes on r.
func (h *ProgressHandlers) Register(r *mux.Router) {
	r.HandleFunc("/progress/{module}/count", h.Count).Methods(http.MethodGet)
	r.HandleFunc("/progress/{module}/{exercise}", h.Reset).Methods(http.MethodDelete)
	r.HandleFunc("/progress/{module}/{exercise}/code", h.GetCode).Methods(http.MethodGet)
	r.HandleFunc("/progress/{module}/{exercise}/code", h.SaveCode).Methods(http.MethodPut)
	r.HandleFunc("/progress/{module}/{exercise}/code", h.ClearCode).Methods(http.MethodDelete)
	r.HandleFunc("/progress/{module}/{exercise}/completed", h.GetCompleted).Methods(http.MethodGet)
	r.HandleFunc("/progress/{module}/{exercise}/completed", h.MarkCompleted).Methods(http.MethodPut)
	r.HandleFunc("/progress/{module}/{exercise}/completed", h.MarkIncomplete).Methods(http.MethodDelete)
}

func exerciseVars(r *http.Request) (string, string) {
	vars := mux.Vars(r)
	return vars["module"], vars["exercise"]
}

// GetCode returns the saved code for an exercise.
func (h *ProgressHandlers) GetCode(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)
	code, ok, err := h.store.GetSavedCode(r.Context(), module, exercise)
	if err != nil {
		SendLookupError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, SavedCodeResponse{Code: code, Found: ok})
}

// SaveCode stores the code for an exercise.
func (h *ProgressHandlers) SaveCode(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)

	var body SaveCodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCodeBody)).Decode(&body); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if err := h.store.SaveCode(r.Context(), module, exercise, body.Code); err != nil {
		SendLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCode forgets the saved code for an exercise.
func (h *ProgressHandlers) ClearCode(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)
	if err := h.store.ClearCode(r.Context(), module, exercise); err != nil {
		SendLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCompleted reports whether an exercise is completed.
func (h *ProgressHandlers) GetCompleted(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)
	done, err := h.store.IsCompleted(r.Context(), module, exercise)
	if err != nil {
		SendLookupError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, CompletedResponse{Completed: done})
}

// MarkCompleted marks an exercise as completed.
func (h *ProgressHandlers) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)
	if err := h.store.MarkCompleted(r.Context(), module, exercise); err != nil {
		SendLookupError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, CompletedResponse{Completed: true})
}

// MarkIncomplete clears the completed mark.
func (h *ProgressHandlers) MarkIncomplete(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)
	if err := h.store.MarkIncomplete(r.Context(), module, exercise); err != nil {
		SendLookupError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, CompletedResponse{Completed: false})
}

// Count returns how many exercises of a module are completed.
func (h *ProgressHandlers) Count(w http.ResponseWriter, r *http.Request) {
	module := mux.Vars(r)["module"]
	n, err := h.store.GetCompletedCount(r.Context(), module)
	if err != nil {
		SendLookupError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, CountResponse{Module: module, Completed: n})
}

// Reset clears both saved code and completion for an exercise.
func (h *ProgressHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	module, exercise := exerciseVars(r)
	if err := h.store.Reset(r.Context(), module, exercise); err != nil {
		SendLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
