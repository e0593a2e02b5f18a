package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"aca-sandbox/internal/audit"
	"aca-sandbox/internal/lesson"
	"aca-sandbox/internal/sandbox"
	"aca-sandbox/internal/toolkit"
)

type Handlers struct {
	svc          *toolkit.Service
	lessons      *lesson.Catalog
	maxCodeChars int
}

func NewHandlers(svc *toolkit.Service, lessons *lesson.Catalog, maxCodeChars int) *Handlers {
	return &Handlers{
		svc:          svc,
		lessons:      lessons,
		maxCodeChars: maxCodeChars,
	}
}

// codeTooLong reports whether code exceeds the submission limit, counted
// in characters rather than bytes.
func (h *Handlers) codeTooLong(code string) bool {
	return h.maxCodeChars > 0 && utf8.RuneCountInString(code) > h.maxCodeChars
}

func (h *Handlers) tooLongMessage() string {
	return fmt.Sprintf("Error: Code too long (max %d characters)", h.maxCodeChars)
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.codeTooLong(req.Code) {
		writeJSON(w, http.StatusBadRequest, ExecuteResponse{Success: false, Output: h.tooLongMessage()})
		return
	}

	if h.svc == nil {
		writeError(w, "sandbox backend unavailable", "RUNNER_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	result, err := h.svc.Run(r.Context(), executionRequest(req))
	if err != nil {
		h.writeExecError(w, err, r)
		return
	}

	writeJSON(w, http.StatusOK, executeResponse(result))
}

func (h *Handlers) HandleExecuteStream(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.codeTooLong(req.Code) {
		writeJSON(w, http.StatusBadRequest, ExecuteResponse{Success: false, Output: h.tooLongMessage()})
		return
	}

	if h.svc == nil {
		writeError(w, "sandbox backend unavailable", "RUNNER_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	stdoutWriter := NewSSEWriter(w, "stdout")
	if stdoutWriter == nil {
		writeError(w, "streaming not supported", "STREAMING_UNSUPPORTED", http.StatusInternalServerError, r)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	result, err := h.svc.RunStreaming(r.Context(), executionRequest(req), stdoutWriter)
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("streaming execution failed")
		sendSSEError(w, "execution failed")
		return
	}

	doneData, _ := json.Marshal(executeResponse(result))
	sendSSEDone(w, string(doneData))
}

func (h *Handlers) writeExecError(w http.ResponseWriter, err error, r *http.Request) {
	switch {
	case sandbox.IsSlotUnavailable(err):
		writeError(w, "execution slot unavailable", "SLOT_UNAVAILABLE", http.StatusServiceUnavailable, r)
	case errors.Is(err, sandbox.ErrClosed):
		writeError(w, "sandbox is shutting down", "RUNNER_UNAVAILABLE", http.StatusServiceUnavailable, r)
	default:
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
		writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
	}
}

func executionRequest(req ExecuteRequest) sandbox.ExecutionRequest {
	return sandbox.ExecutionRequest{
		Source:       req.Code,
		Language:     req.Language,
		Capabilities: req.Capabilities,
		Confirmed:    req.Confirmed,
	}
}

func executeResponse(result *sandbox.ExecutionResult) ExecuteResponse {
	return ExecuteResponse{
		ID:        result.ID,
		Success:   result.Succeeded,
		Output:    result.Text(),
		Category:  string(result.Category),
		ElapsedMS: result.ElapsedMillis(),
		Elapsed:   Duration{result.Elapsed},
		Warning:   result.Warning,
	}
}

// decodeCode reads a CodeRequest and applies the size limit. It writes the
// error response itself and reports whether the handler should continue.
func (h *Handlers) decodeCode(w http.ResponseWriter, r *http.Request) (CodeRequest, bool) {
	var req CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	if h.codeTooLong(req.Code) {
		writeJSON(w, http.StatusBadRequest, TextResponse{Output: h.tooLongMessage()})
		return req, false
	}
	return req, true
}

func (h *Handlers) HandleLint(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	findings, text := h.svc.Lint(r.Context(), req.Language, req.Code)
	writeJSON(w, http.StatusOK, LintResponse{Output: text, Findings: findings})
}

func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	report, text := h.svc.Analyze(r.Context(), req.Language, req.Code)
	writeJSON(w, http.StatusOK, AnalyzeResponse{Output: text, Report: report})
}

func (h *Handlers) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	suggestions, text := h.svc.Suggest(r.Context(), req.Language, req.Code)
	writeJSON(w, http.StatusOK, SuggestResponse{Output: text, Suggestions: suggestions})
}

func (h *Handlers) HandleExplain(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Output: h.svc.Explain(r.Context(), req.Language, req.Code)})
}

func (h *Handlers) HandleRead(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Path == "" {
		writeError(w, "path is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Output: h.svc.Read(r.Context(), req.Path, req.Lines)})
}

func (h *Handlers) HandleManifest(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.LastRun(r.Context())
	if errors.Is(err, audit.ErrNoEntry) {
		writeError(w, "no tool has run yet", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("reading manifest")
		writeError(w, "manifest unavailable", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handlers) HandleListLessons(w http.ResponseWriter, r *http.Request) {
	all := h.lessons.All()
	out := make([]LessonSummary, 0, len(all))
	for _, l := range all {
		out = append(out, LessonSummary{Name: l.Name, Track: l.Track, Language: l.Language})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleGetLesson(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	l, ok := h.lessons.Lookup(name)
	if !ok {
		writeError(w, fmt.Sprintf("lesson %q not found", name), "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
