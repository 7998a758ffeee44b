package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ChatRequest is the subset of a chat completion request the gateway reads
type ChatRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// EchoResponse reports what the gateway received
type EchoResponse struct {
	Object        string `json:"object"`
	Model         string `json:"model"`
	Path          string `json:"path"`
	RawQuery      string `json:"raw_query"`
	Authorization string `json:"authorization"`
	ForwardedFor  string `json:"x_forwarded_for"`
}

// ErrorResponse mirrors the OpenAI error envelope
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

var realKey string

func main() {
	port := flag.Int("port", 8083, "Port to listen on")
	key := flag.String("key", "", "API key the gateway accepts")
	flag.Parse()

	if *key == "" {
		log.Fatal("API key is required (use -key flag)")
	}
	realKey = *key

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/openai/chat/completions", requireKey(handleChatCompletions))
	mux.HandleFunc("/openai/models", requireKey(handleModels))

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	log.Printf("Test gateway starting on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// requireKey rejects requests that do not carry the real key
func requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+realKey {
			var resp ErrorResponse
			resp.Error.Message = "Incorrect API key provided."
			resp.Error.Type = "invalid_request_error"
			resp.Error.Code = "invalid_api_key"
			writeJSON(w, http.StatusUnauthorized, resp)
			return
		}
		next(w, r)
	}
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var resp ErrorResponse
		resp.Error.Message = "We could not parse the JSON body of your request."
		resp.Error.Type = "invalid_request_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	if req.Stream {
		streamChunks(w, req.Model)
		return
	}

	writeJSON(w, http.StatusOK, EchoResponse{
		Object:        "chat.completion",
		Model:         req.Model,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		ForwardedFor:  r.Header.Get("X-Forwarded-For"),
	})
}

// streamChunks sends a short server-sent event stream, flushing each event
func streamChunks(w http.ResponseWriter, model string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for _, word := range strings.Fields("hello from the gateway") {
		chunk := map[string]interface{}{
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []map[string]interface{}{
				{"index": 0, "delta": map[string]string{"content": word}},
			},
		}
		data, _ := json.Marshal(chunk)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		time.Sleep(50 * time.Millisecond)
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data": []map[string]string{
			{"id": "gpt-4o-mini", "object": "model"},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
