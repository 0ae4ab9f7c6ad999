package server

import (
	"encoding/json"
	"fmt"
	"herald_bot/shared"
	"io"
	"net/http"
)

const (
	apiKeyHeader     = "X-API-KEY"
	internalErrorStr = "500 Internal Server Error"
	badRequestStr    = "400 Invalid Request"
	notFoundStr      = "404 Not Found"
	conflictStr      = "409 Conflict"
	badApiKeyStr     = "401 Missing or Invalid API Key"
)

// Defines a single HTTP handler (endpoint)
type handlerDef struct {
	method  string
	pattern string
	handler func(http.ResponseWriter, *http.Request)
}

// IHandlerGroup groups together multiple HTTP handler definitions.
type IHandlerGroup interface {
	Prefix() string
	GroupDefs() []handlerDef
	AuthMW() func(next http.Handler) http.Handler
}

func emptyMW(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	})
}

// apiKeyMW lets through requests whose X-API-KEY is one of the configured keys.
// With no keys configured, every request is refused.
func apiKeyMW(cfg *shared.Config, logger shared.ILogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var apiKey = r.Header.Get(apiKeyHeader)
			found := false
			for _, key := range cfg.Secrets.ApiKeys {
				if apiKey != "" && apiKey == key {
					found = true
				}
			}
			if !found {
				keyPart := apiKey
				if len(apiKey) > 4 {
					keyPart = apiKey[:4] + "..."
				}
				logger.Warnf("API request with missing or invalid key '%s': %s", keyPart, r.URL.Path)
				writeErrorResponse(w, badApiKeyStr, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Returns the JSON serialized object as the response body; handles errors.
func writeJsonResponse(logger shared.ILogger, w http.ResponseWriter, resp interface{}) {
	writeJsonResponseWithStatus(logger, w, resp, http.StatusOK)
}

func writeJsonResponseWithStatus(logger shared.ILogger, w http.ResponseWriter, resp interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	var respJson []byte
	if respJson, err = json.Marshal(resp); err != nil {
		logger.Warnf("Failed to serialize response: %v\n", err)
		http.Error(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, err = fmt.Fprintln(w, string(respJson)); err != nil {
		logger.Warnf("Failed to write response: %v\n", err)
	}
}

type errorResp struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeErrorResponse(w http.ResponseWriter, msg string, code int) {
	resp := errorResp{msg, code}
	respJson, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = fmt.Fprintln(w, string(respJson))
}

func readBody(logger shared.ILogger, w http.ResponseWriter, r *http.Request) []byte {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warnf("Failed to read request body: %v", err)
		writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
		return nil
	}
	return body
}
