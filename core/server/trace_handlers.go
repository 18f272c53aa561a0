package server

import (
	"net/http"
	"strconv"
	"strings"

	coreerrors "github.com/davidahmann/observer/core/errors"
	"github.com/davidahmann/observer/core/gateway"
	"github.com/davidahmann/observer/core/trace"
)

type traceResponse struct {
	Version string                   `json:"version"`
	Items   []trace.ObservationEvent `json:"items"`
}

type linesResponse struct {
	Version string   `json:"version"`
	Lines   []string `json:"lines"`
}

type tailResponse struct {
	Version    string                   `json:"version"`
	Items      []trace.ObservationEvent `json:"items"`
	NextCursor int64                    `json:"next_cursor"`
}

func (h *handler) handleProject(writer http.ResponseWriter, request *http.Request) {
	items, requestErr := readVersionedItems(request, versionProject)
	if requestErr != nil {
		writeRequestError(writer, requestErr)
		return
	}
	events, err := trace.ProjectRawItems(items)
	if err != nil {
		writeTraceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, traceResponse{Version: versionTrace, Items: normalizeDiagnostics(events)})
}

func (h *handler) handleExplain(writer http.ResponseWriter, request *http.Request) {
	items, requestErr := readVersionedItems(request, versionTrace)
	if requestErr != nil {
		writeRequestError(writer, requestErr)
		return
	}
	events, err := trace.ParseTraceItems(items)
	if err != nil {
		writeTraceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, linesResponse{Version: versionExplain, Lines: trace.ExplainLines(events, nil)})
}

func (h *handler) handleSummary(writer http.ResponseWriter, request *http.Request) {
	items, requestErr := readVersionedItems(request, versionTrace)
	if requestErr != nil {
		writeRequestError(writer, requestErr)
		return
	}
	events, err := trace.ParseTraceItems(items)
	if err != nil {
		writeTraceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, linesResponse{Version: versionSummary, Lines: trace.SummaryLines(events)})
}

// handleTail fetches one gateway page from offset since and projects it. The
// next_cursor is one past the last event id, or since when the page is empty.
func (h *handler) handleTail(writer http.ResponseWriter, request *http.Request) {
	if h.gateway == nil {
		writeError(writer, http.StatusBadRequest, "invalid_input", "gateway url is not configured")
		return
	}
	streamID := strings.TrimSpace(request.URL.Query().Get("stream_id"))
	if streamID == "" {
		streamID = "default"
	}
	since := int64(0)
	if raw := request.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeRequestError(writer, invalidQuery("since must be a non-negative integer"))
			return
		}
		since = parsed
	}

	snapshot, err := h.gateway.FetchRaw(request.Context(), gateway.Query{
		StreamID: streamID,
		Offset:   since,
		Limit:    h.tailLimit,
	})
	if err != nil {
		h.logger.WarnContext(request.Context(), "gateway snapshot fetch failed", "error", err, "stream_id", streamID)
		writeError(writer, http.StatusBadGateway, "gateway_unavailable", err.Error())
		return
	}
	events, err := trace.ProjectSnapshotEnvelope(snapshot)
	if err != nil {
		writeTraceError(writer, err)
		return
	}
	nextCursor := since
	if len(events) > 0 {
		nextCursor = events[len(events)-1].EventID + 1
	}
	writeJSON(writer, http.StatusOK, tailResponse{Version: versionTail, Items: normalizeDiagnostics(events), NextCursor: nextCursor})
}

// writeTraceError reports parse and canonicalization failures as 400s.
func writeTraceError(writer http.ResponseWriter, err error) {
	code := string(coreerrors.CategoryOf(err))
	if code == "" {
		code = string(coreerrors.CategoryInvalidInput)
	}
	writeError(writer, http.StatusBadRequest, code, trimmedMessage(err))
}

func normalizeDiagnostics(events []trace.ObservationEvent) []trace.ObservationEvent {
	for index := range events {
		if events[index].Diagnostics == nil {
			events[index].Diagnostics = []string{}
		}
	}
	return events
}
