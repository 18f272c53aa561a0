package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidahmann/observer/core/journal"
	"github.com/davidahmann/observer/core/observer"
)

type archiveResponse struct {
	ObserverVersion int             `json:"observer_version"`
	ThreadID        string          `json:"thread_id"`
	ArchivedTotal   int             `json:"archived_total"`
	Entries         []journal.Entry `json:"entries"`
}

func (h *handler) handleStatus(writer http.ResponseWriter, request *http.Request) {
	status, err := h.observer.Status()
	if err != nil {
		h.logger.ErrorContext(request.Context(), "status failed", "error", err)
		writeError(writer, http.StatusInternalServerError, "internal_failure", "status unavailable")
		return
	}
	writeJSON(writer, http.StatusOK, status)
}

func (h *handler) handleThreads(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, h.observer.Threads())
}

func (h *handler) handleThread(writer http.ResponseWriter, request *http.Request) {
	detail, ok := h.observer.Thread(chi.URLParam(request, "thread_id"))
	if !ok {
		writeError(writer, http.StatusNotFound, "not_found", "thread not found")
		return
	}
	writeJSON(writer, http.StatusOK, detail)
}

// handleThreadArchive reads the journal rows of one thread. The journal can
// hold threads from earlier runs that the in-memory index never saw.
func (h *handler) handleThreadArchive(writer http.ResponseWriter, request *http.Request) {
	if h.archive == nil {
		writeError(writer, http.StatusNotFound, "not_found", "journal is not configured")
		return
	}
	threadID := chi.URLParam(request, "thread_id")
	entries, err := h.archive.Thread(request.Context(), threadID)
	if err != nil {
		h.logger.ErrorContext(request.Context(), "journal thread read failed", "error", err, "thread_id", threadID)
		writeError(writer, http.StatusInternalServerError, "internal_failure", "journal unavailable")
		return
	}
	total, err := h.archive.Count(request.Context())
	if err != nil {
		h.logger.ErrorContext(request.Context(), "journal count failed", "error", err)
		writeError(writer, http.StatusInternalServerError, "internal_failure", "journal unavailable")
		return
	}
	writeJSON(writer, http.StatusOK, archiveResponse{
		ObserverVersion: observer.Version,
		ThreadID:        threadID,
		ArchivedTotal:   total,
		Entries:         entries,
	})
}

func (h *handler) handleSignals(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, h.observer.Signals())
}

// handleIngest accepts {"events": [...]} in gateway index order. Items are
// never reordered; non-object items are skipped.
func (h *handler) handleIngest(writer http.ResponseWriter, request *http.Request) {
	body, requestErr := readObject(request)
	if requestErr != nil {
		writeRequestError(writer, requestErr)
		return
	}
	items, ok := body["events"].([]any)
	if !ok {
		writeError(writer, http.StatusBadRequest, "invalid_input", "events must be list")
		return
	}
	writeJSON(writer, http.StatusOK, h.observer.IngestItems(request.Context(), items))
}
