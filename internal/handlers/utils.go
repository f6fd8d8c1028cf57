package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

const serverErrorMessage = "Internal Server Error!"

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func userIDFromContext(ctx context.Context) (primitive.ObjectID, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok || strings.TrimSpace(subject) == "" {
		return primitive.NilObjectID, errors.New("missing subject")
	}
	id, err := primitive.ObjectIDFromHex(subject)
	if err != nil {
		return primitive.NilObjectID, errors.New("invalid subject")
	}
	return id, nil
}

func objectIDFromHex(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(strings.TrimSpace(hex))
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Success:    false,
		StatusCode: status,
		Message:    message,
	})
}

func writeServerError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, serverErrorMessage)
}

func contextWithTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}
