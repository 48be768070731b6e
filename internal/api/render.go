package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/soaringjerry/Pollen/internal/middleware"
	"github.com/soaringjerry/Pollen/internal/services"
	"github.com/soaringjerry/Pollen/internal/utils"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error      string               `json:"error"`
	Message    string               `json:"message"`
	Violations []services.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid, services.ErrorValidation, services.ErrorInvalidLink:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict, services.ErrorClosed:
		return http.StatusConflict
	case services.ErrorPersistence:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// localizedKeys maps error codes with fixed user-facing text to i18n keys.
var localizedKeys = map[services.ErrorCode]string{
	services.ErrorNotFound:    "poll.not_found",
	services.ErrorInvalidLink: "link.invalid",
	services.ErrorClosed:      "poll.closed",
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		slog.Error("unhandled error", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	body := errorBody{Error: string(se.Code), Message: se.Message, Violations: localizeViolations(locale, se.Violations)}
	if key, ok := localizedKeys[se.Code]; ok {
		body.Message = utils.T(locale, key)
	}
	if len(body.Violations) > 0 {
		body.Message = body.Violations[0].Message
	}
	writeJSON(w, statusFor(se.Code), body)
}

func localizeViolations(locale string, vs []services.Violation) []services.Violation {
	if len(vs) == 0 {
		return nil
	}
	format := utils.T(locale, "form.required")
	out := make([]services.Violation, len(vs))
	for i, v := range vs {
		v.Message = services.RequiredMessage(format, v.Label)
		out[i] = v
	}
	return out
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body required")
		}
		return services.NewInvalidError("malformed JSON: " + err.Error())
	}
	return nil
}
