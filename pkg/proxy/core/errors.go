package proxy

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// Code is the stable machine-readable identifier of a failure
type Code string

// Failure codes returned to clients
const (
	CodeNoEndpointURL         Code = "wrapper_custom_no_endpoint_url_in_env"
	CodeNoDummyKey            Code = "wrapper_custom_no_dummy_key_in_env"
	CodeNoDummyKeyInAuth      Code = "wrapper_custom_no_dummy_key_in_authorization"
	CodeInvalidDummyKey       Code = "wrapper_custom_invalid_dummy_key"
	CodeNoRealKey             Code = "wrapper_custom_no_real_key_in_env"
	CodeDummyKeyEqualsRealKey Code = "wrapper_custom_dummy_key_equals_to_real_key"
	CodeUnknownURL            Code = "unknown_url"
	CodeForwardingFailed      Code = "wrapper_forwarding_failed"
)

// Error record types
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeServer         = "server_error"
)

type definition struct {
	status  int
	message string
}

var definitions = map[Code]definition{
	CodeNoEndpointURL: {
		status:  http.StatusBadRequest,
		message: "AI_GATEWAY_ENDPOINT_URL is not configured.",
	},
	CodeNoDummyKey: {
		status:  http.StatusBadRequest,
		message: "DUMMY_WRAPPER_KEY is not configured.",
	},
	CodeNoDummyKeyInAuth: {
		status:  http.StatusUnauthorized,
		message: "You didn't provide an API key. You need to provide your API key in an Authorization header using Bearer auth (i.e. Authorization: Bearer YOUR_KEY).",
	},
	CodeInvalidDummyKey: {
		status:  http.StatusBadRequest,
		message: "Incorrect API key provided.",
	},
	CodeNoRealKey: {
		status:  http.StatusInternalServerError,
		message: "REAL_OPENAI_KEY is not configured.",
	},
	CodeDummyKeyEqualsRealKey: {
		status:  http.StatusInternalServerError,
		message: "DUMMY_WRAPPER_KEY must differ from REAL_OPENAI_KEY.",
	},
	CodeUnknownURL: {
		status:  http.StatusBadRequest,
		message: "Unknown request URL. Only paths under /v1 are served.",
	},
	CodeForwardingFailed: {
		status:  http.StatusInternalServerError,
		message: "Failed to forward the request to the AI gateway.",
	},
}

// Status returns the HTTP status for the code (500 for unknown codes)
func (c Code) Status() int {
	if d, ok := definitions[c]; ok {
		return d.status
	}
	return http.StatusInternalServerError
}

// ErrorRecord is the JSON body of every error response.
// Param is always nil and encodes as null.
type ErrorRecord struct {
	Type    string  `json:"type"`
	Code    Code    `json:"code"`
	Message string  `json:"message"`
	Param   *string `json:"param"`
}

// Failure is a terminal outcome of request handling
type Failure struct {
	Status int
	Record ErrorRecord
}

// Error implements the error interface
func (f *Failure) Error() string {
	return fmt.Sprintf("%s (%d): %s", f.Record.Code, f.Status, f.Record.Message)
}

// NewFailure builds the Failure for code with its fixed status and message
func NewFailure(code Code) *Failure {
	d, ok := definitions[code]
	if !ok {
		d = definition{status: http.StatusInternalServerError, message: string(code)}
	}

	recordType := TypeInvalidRequest
	if d.status >= http.StatusInternalServerError {
		recordType = TypeServer
	}

	return &Failure{
		Status: d.status,
		Record: ErrorRecord{
			Type:    recordType,
			Code:    code,
			Message: d.message,
		},
	}
}

// WriteError writes f as a JSON error response
func WriteError(w http.ResponseWriter, f *Failure) {
	body, err := json.Marshal(f.Record)
	if err != nil {
		// ErrorRecord only holds strings; keep a valid body regardless
		body = []byte(`{"type":"server_error","code":"` + string(f.Record.Code) + `","message":"","param":null}`)
	}

	h := w.Header()
	h.Set("Content-Type", "application/json;charset=UTF-8")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(f.Status)
	_, _ = w.Write(body)
}
