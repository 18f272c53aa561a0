package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/davidahmann/observer/core/trace"
)

const (
	versionError   = "ui.v1.error"
	versionProject = "ui.v1.project"
	versionTrace   = "ui.v1.trace"
	versionExplain = "ui.v1.explain"
	versionSummary = "ui.v1.summary"
	versionTail    = "ui.v1.tail"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Version string    `json:"version"`
	Error   errorBody `json:"error"`
}

type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func writeError(writer http.ResponseWriter, status int, code, message string) {
	writeJSON(writer, status, errorResponse{
		Version: versionError,
		Error:   errorBody{Code: code, Message: strings.TrimSpace(message)},
	})
}

func writeRequestError(writer http.ResponseWriter, err *requestError) {
	writeError(writer, err.status, err.code, err.message)
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		http.Error(writer, `{"version":"ui.v1.error","error":{"code":"internal_failure","message":"encode response"}}`, http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, _ = writer.Write(append(encoded, '\n'))
}

// readObject reads the request body as one JSON object. Numbers stay
// json.Number so integer payloads keep their exact value.
func readObject(request *http.Request) (map[string]any, *requestError) {
	payload, err := io.ReadAll(request.Body)
	if err != nil {
		if isRequestTooLarge(err) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, code: "request_too_large", message: "request body too large"}
		}
		return nil, &requestError{status: http.StatusBadRequest, code: "invalid_input", message: "read request body"}
	}
	decoded, err := trace.DecodeJSON(payload)
	if err != nil {
		return nil, &requestError{status: http.StatusBadRequest, code: "invalid_input", message: "decode request JSON"}
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, &requestError{status: http.StatusBadRequest, code: "invalid_input", message: "expected JSON object"}
	}
	return obj, nil
}

// readVersionedItems reads {"version": want, "items": [...]}.
func readVersionedItems(request *http.Request, want string) ([]any, *requestError) {
	body, requestErr := readObject(request)
	if requestErr != nil {
		return nil, requestErr
	}
	if version, _ := body["version"].(string); version != want {
		return nil, &requestError{status: http.StatusBadRequest, code: "invalid_input", message: "invalid version"}
	}
	items, ok := body["items"].([]any)
	if !ok {
		return nil, &requestError{status: http.StatusBadRequest, code: "invalid_input", message: "items must be list"}
	}
	return items, nil
}

func invalidQuery(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, code: "invalid_input", message: fmt.Sprintf(format, args...)}
}
