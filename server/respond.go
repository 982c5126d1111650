package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
)

var (
	errUnauthenticated = errors.New("missing or invalid bearer token")
	errRouteNotFound   = fmt.Errorf("no such route: %w", database.ErrNotFound)
)

// apiFunc handles a request and returns the value to encode as JSON.
type apiFunc func(req *http.Request) (interface{}, error)

// api adapts fn to an http.Handler responding with code on success.
func (s *Server) api(code int, fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		v, err := fn(req)
		if err != nil {
			s.writeError(w, req, err)
			return
		}
		writeJSON(w, code, v)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		v = struct{}{}
	}
	json.NewEncoder(w).Encode(v)
}

// statusCode maps an error to its HTTP status.
func statusCode(err error) int {
	var verr model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrDuplicateKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError logs server errors and responds with the mapped status.
func (s *Server) writeError(w http.ResponseWriter, req *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.log.Error("HTTP handler error", "error", err, "url", req.URL.String(), "method", req.Method)
	} else {
		s.log.Debug("HTTP request rejected", "error", err, "url", req.URL.String(), "code", code)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// decode reads a JSON request body into v. An empty body leaves v as is.
func decode(req *http.Request, v interface{}) error {
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(req.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return model.Invalid("decoding request body: %v", err)
	}
	return nil
}

// decodeMap reads a JSON object body with numbers as float64.
func decodeMap(req *http.Request) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if req.Body == nil || req.ContentLength == 0 {
		return m, nil
	}
	if err := json.NewDecoder(req.Body).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, model.Invalid("decoding request body: %v", err)
	}
	return m, nil
}

func vars(req *http.Request, key string) string {
	return mux.Vars(req)[key]
}

// queryInt parses an optional integer query parameter.
func queryInt(req *http.Request, key string, def int) (int, error) {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.Invalid("%s must be an integer", key)
	}
	return n, nil
}

// listOptions builds find options from the keys and limit query parameters.
func listOptions(req *http.Request, sort ...string) (*database.FindOptions, error) {
	opts := database.Sorted(sort...)
	limit, err := queryInt(req, "limit", 0)
	if err != nil {
		return nil, err
	}
	opts.Limit = limit
	if keys := req.URL.Query()["keys"]; len(keys) > 0 {
		opts.Projection = keys
	}
	return opts, nil
}

// eqFilter adds an equality condition for each query parameter present.
func eqFilter(req *http.Request, f database.Filter, keys ...string) database.Filter {
	q := req.URL.Query()
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			f = append(f, database.Eq(k, v))
		}
	}
	return f
}
