package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User holds one client session, correlated by an opaque identifier.
type User struct {
	ID         int64
	SessionID  string
	CreatedAt  time.Time
	LastActive time.Time
}

// Recommendation is one user query together with the movies generated
// for it. Movies share its lifecycle and are cascade-deleted with it.
type Recommendation struct {
	ID        int64
	UserID    int64
	Query     string
	CreatedAt time.Time
	Movies    []Movie
}

// Movie is one persisted movie row. Immutable once created.
type Movie struct {
	ID               int64
	RecommendationID int64
	Title            string
	Year             int
	Genre            string
	Description      string
	Rating           float64
	CreatedAt        time.Time
}

// Stats aggregates usage counts across all sessions.
type Stats struct {
	TotalUsers           int
	TotalRecommendations int
	TotalMovies          int
	AvgMoviesPerRec      float64
	RecentActivity       []Activity
}

// Activity is one entry of the recent-queries feed.
type Activity struct {
	Query      string
	MovieCount int
	CreatedAt  time.Time
}
