package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"genhub/internal/domain"
	"genhub/internal/infra/logging"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func success(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch domain.Kind(err) {
	case "validation", "unsupported":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "not_configured", "auth":
		return http.StatusServiceUnavailable
	case "connection", "upstream":
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail writes the error envelope. data, when non-nil, rides along so a
// caller still learns e.g. the id of the job that failed.
func fail(w http.ResponseWriter, r *http.Request, log *zerolog.Logger, err error, data any) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, envelope{Error: msg, Kind: domain.Kind(err), Data: data})
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return domain.Invalid("body", "is empty")
		case errors.As(err, &syn):
			return domain.Invalid("body", fmt.Sprintf("malformed JSON at offset %d", syn.Offset))
		case errors.As(err, &typ):
			return domain.Invalid(typ.Field, "has the wrong type")
		}
		return domain.Invalid("body", err.Error())
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return n, nil
}
