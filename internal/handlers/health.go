package handlers

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const healthPingTimeout = 2 * time.Second

// Healthz reports liveness of the API and its database connection.
func Healthz(database *mongo.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := contextWithTimeout(r, healthPingTimeout)
		defer cancel()

		if err := database.Client().Ping(ctx, readpref.Primary()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  "ok",
		})
	}
}
