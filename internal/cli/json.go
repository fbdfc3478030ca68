package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/orion-fleet/orion/internal/errors"
)

// machineMode is set by --json: output becomes a JSON envelope and human
// decorations are suppressed.
var machineMode bool

// MachineMode reports whether --json was passed.
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps every --json response.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError is the machine-readable form of a failure. Code is one of the
// structured error codes (CONFIG, AUTH, NOT_FOUND, ...) or UNKNOWN.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Cause      string `json:"cause,omitempty"`
}

const errCodeUnknown = "UNKNOWN"

// WriteJSONSuccess writes a successful envelope around data.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError writes a failed envelope for err.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts err into a JSONError, keeping the code and
// suggestion of a structured error.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		out := &JSONError{
			Code:       string(e.Code),
			Message:    e.Message,
			Suggestion: e.Suggestion,
		}
		if e.Cause != nil {
			out.Cause = e.Cause.Error()
		}
		return out
	}

	return &JSONError{Code: errCodeUnknown, Message: err.Error()}
}

// emit prints data as JSON in machine mode, otherwise calls human.
func emit(w io.Writer, data interface{}, human func() error) error {
	if machineMode {
		return WriteJSONSuccess(w, data)
	}
	return human()
}

// writeJSONLine writes v as a single compact JSON line, for streamed output.
func writeJSONLine(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}
