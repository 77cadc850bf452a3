// Package api implements the HTTP and MCP surfaces of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/cineai/internal/recommend"
	"github.com/kalambet/cineai/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const defaultHistoryLimit = 10

// Recommender produces validated movie lists from a free-text query.
type Recommender interface {
	Generate(ctx context.Context, query string) ([]recommend.Movie, error)
	Configured() bool
}

// Deps is the service context shared by all request handlers,
// constructed once at startup.
type Deps struct {
	Store       *storage.Store
	Recommender Recommender
	Provider    string
	Environment string
	Version     string
}

// NewHandler returns an http.Handler implementing the recommendation
// REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverJSON)

	r.Get("/", handleHome(deps))
	r.Get("/api/health", handleHealth(deps))
	r.Post("/api/recommend", handleRecommend(deps))
	r.Get("/api/history/{sessionID}", handleHistory(deps))
	r.Get("/api/statistics", handleStatistics(deps))
	r.Delete("/api/clear-history/{sessionID}", handleClearHistory(deps))

	r.NotFound(handleNotFound)
	return r
}

// recoverJSON catches panics escaping a handler and reports them as a
// JSON 500 instead of killing the connection.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in request handler", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":   "Internal server error",
					"message": "An unexpected error occurred",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func handleHome(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     "CineAI Backend API",
			"status":      "running",
			"version":     deps.Version,
			"ai_provider": deps.Provider,
			"database":    "SQLite",
			"endpoints": map[string]any{
				"health": map[string]string{
					"method":      "GET",
					"path":        "/api/health",
					"description": "Check server health and configuration status",
				},
				"recommend": map[string]string{
					"method":      "POST",
					"path":        "/api/recommend",
					"description": "Get AI-powered movie recommendations",
				},
				"history": map[string]string{
					"method":      "GET",
					"path":        "/api/history/{session_id}",
					"description": "Retrieve a session's recommendation history",
				},
				"statistics": map[string]string{
					"method":      "GET",
					"path":        "/api/statistics",
					"description": "Get application usage statistics",
				},
				"clear_history": map[string]string{
					"method":      "DELETE",
					"path":        "/api/clear-history/{session_id}",
					"description": "Clear all recommendations for a session",
				},
			},
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := "connected"
		if err := deps.Store.Ping(); err != nil {
			database = "unavailable"
		}
		aiService := "not configured"
		if deps.Recommender.Configured() {
			aiService = "configured"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "healthy",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    database,
			"ai_service":  aiService,
			"ai_provider": deps.Provider,
			"environment": deps.Environment,
		})
	}
}

type recommendRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func handleRecommend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "No data provided")
			return
		}

		query := strings.TrimSpace(req.Query)
		if query == "" {
			writeError(w, http.StatusBadRequest, "Query is required")
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		user, err := deps.Store.GetOrCreateUser(sessionID)
		if err != nil {
			slog.Error("resolving user session", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to create user session")
			return
		}

		movies, err := deps.Recommender.Generate(r.Context(), query)
		if err != nil {
			writeGenerateError(w, err)
			return
		}

		rec, err := deps.Store.SaveRecommendation(user.ID, query, movies)
		if err != nil {
			slog.Error("saving recommendation", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to save recommendation")
			return
		}

		// Respond from the in-memory validated list, not a reload.
		writeJSON(w, http.StatusOK, map[string]any{
			"success":           true,
			"movies":            movies,
			"session_id":        sessionID,
			"recommendation_id": rec.ID,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"query":             query,
		})
	}
}

// writeGenerateError maps recommendation failures to HTTP responses.
// Parse and validation details stay in the server log; clients get a
// generic message.
func writeGenerateError(w http.ResponseWriter, err error) {
	var parseErr *recommend.ParseError
	var valErr *recommend.ValidationError
	var transportErr *recommend.TransportError
	switch {
	case errors.Is(err, recommend.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "AI service not configured. Please set the Groq API key.")
	case errors.As(err, &valErr):
		slog.Warn("model response failed validation", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to parse AI response. Please try again.")
	case errors.As(err, &parseErr):
		writeError(w, http.StatusInternalServerError, "Failed to parse AI response. Please try again.")
	case errors.As(err, &transportErr):
		slog.Error("model call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "%v", err)
	default:
		slog.Error("generating recommendations", "error", err)
		writeError(w, http.StatusInternalServerError, "%v", err)
	}
}

type historyMovie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	Genre       string  `json:"genre"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
}

type historyItem struct {
	ID        int64          `json:"id"`
	Query     string         `json:"query"`
	CreatedAt string         `json:"created_at"`
	Movies    []historyMovie `json:"movies"`
}

func toHistoryItems(recs []storage.Recommendation) []historyItem {
	items := make([]historyItem, 0, len(recs))
	for _, rec := range recs {
		item := historyItem{
			ID:        rec.ID,
			Query:     rec.Query,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			Movies:    make([]historyMovie, 0, len(rec.Movies)),
		}
		for _, m := range rec.Movies {
			item.Movies = append(item.Movies, historyMovie{
				ID:          m.ID,
				Title:       m.Title,
				Year:        m.Year,
				Genre:       m.Genre,
				Description: m.Description,
				Rating:      m.Rating,
			})
		}
		items = append(items, item)
	}
	return items
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		recs, err := deps.Store.History(sessionID, limit)
		if err != nil {
			slog.Error("fetching history", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch history")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"recommendations": toHistoryItems(recs),
		})
	}
}

type activityItem struct {
	Query      string `json:"query"`
	MovieCount int    `json:"movie_count"`
	Timestamp  string `json:"timestamp"`
}

func handleStatistics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Statistics()
		if err != nil {
			slog.Error("computing statistics", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch statistics")
			return
		}
		writeJSON(w, http.StatusOK, statisticsPayload(stats))
	}
}

// statisticsPayload is shared with the MCP statistics resource.
func statisticsPayload(stats storage.Stats) map[string]any {
	activity := make([]activityItem, 0, len(stats.RecentActivity))
	for _, a := range stats.RecentActivity {
		activity = append(activity, activityItem{
			Query:      a.Query,
			MovieCount: a.MovieCount,
			Timestamp:  a.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"success": true,
		"statistics": map[string]any{
			"total_users":                       stats.TotalUsers,
			"total_recommendations":             stats.TotalRecommendations,
			"total_movies":                      stats.TotalMovies,
			"average_movies_per_recommendation": stats.AvgMoviesPerRec,
		},
		"recent_activity": activity,
	}
}

func handleClearHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		n, err := deps.Store.ClearHistory(sessionID)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			slog.Error("clearing history", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to clear history")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("History cleared successfully (%d items removed)", n),
		})
	}
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":   "Endpoint not found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}
