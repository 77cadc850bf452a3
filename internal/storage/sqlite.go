// Package storage persists sessions, recommendations, and movies in an
// embedded SQLite database.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/cineai/internal/recommend"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for users, recommendations,
// and movies.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "cineai.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Cascade deletes rely on foreign key enforcement.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Users ---

// GetOrCreateUser looks up a user by session identifier, creating one on
// first sight and bumping last_active otherwise. Both paths run in a
// single transaction; on failure the transaction is rolled back and the
// caller must treat the request as failed.
func (s *Store) GetOrCreateUser(sessionID string) (User, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return User{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var u User
	var createdAt, lastActive string
	err = tx.QueryRow(`SELECT id, created_at, last_active FROM users WHERE session_id = ?`, sessionID).
		Scan(&u.ID, &createdAt, &lastActive)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`INSERT INTO users (session_id, created_at, last_active) VALUES (?, ?, ?)`,
			sessionID, now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return User{}, fmt.Errorf("creating user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return User{}, fmt.Errorf("reading new user id: %w", err)
		}
		u = User{ID: id, SessionID: sessionID, CreatedAt: now, LastActive: now}
	case err != nil:
		return User{}, fmt.Errorf("looking up user: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE users SET last_active = ? WHERE id = ?`, now.Format(time.RFC3339), u.ID); err != nil {
			return User{}, fmt.Errorf("updating last_active: %w", err)
		}
		u.SessionID = sessionID
		if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return User{}, fmt.Errorf("parsing created_at: %w", err)
		}
		u.LastActive = now
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("committing user: %w", err)
	}
	return u, nil
}

// --- Recommendations ---

// SaveRecommendation creates one recommendation row and one movie row
// per validated movie in a single transaction. On any failure the
// transaction is rolled back so no partial rows survive.
func (s *Store) SaveRecommendation(userID int64, query string, movies []recommend.Movie) (Recommendation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Recommendation{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(`INSERT INTO recommendations (user_id, query, created_at) VALUES (?, ?, ?)`,
		userID, query, now.Format(time.RFC3339))
	if err != nil {
		return Recommendation{}, fmt.Errorf("inserting recommendation: %w", err)
	}
	recID, err := res.LastInsertId()
	if err != nil {
		return Recommendation{}, fmt.Errorf("reading recommendation id: %w", err)
	}

	rec := Recommendation{ID: recID, UserID: userID, Query: query, CreatedAt: now}
	for _, m := range movies {
		res, err := tx.Exec(`
			INSERT INTO movies (recommendation_id, title, year, genre, description, rating, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			recID, m.Title, m.Year, m.Genre, m.Description, m.Rating, now.Format(time.RFC3339))
		if err != nil {
			return Recommendation{}, fmt.Errorf("inserting movie %q: %w", m.Title, err)
		}
		movieID, err := res.LastInsertId()
		if err != nil {
			return Recommendation{}, fmt.Errorf("reading movie id: %w", err)
		}
		rec.Movies = append(rec.Movies, Movie{
			ID:               movieID,
			RecommendationID: recID,
			Title:            m.Title,
			Year:             m.Year,
			Genre:            m.Genre,
			Description:      m.Description,
			Rating:           m.Rating,
			CreatedAt:        now,
		})
	}

	if err := tx.Commit(); err != nil {
		return Recommendation{}, fmt.Errorf("committing recommendation: %w", err)
	}
	return rec, nil
}

// History returns up to limit recommendations for a session, most
// recently created first, with their movies. An unknown session yields
// an empty result, not an error.
func (s *Store) History(sessionID string, limit int) ([]Recommendation, error) {
	var userID int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE session_id = ?`, sessionID).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, query, created_at
		FROM recommendations WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var r Recommendation
		var createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Query, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range recs {
		movies, err := s.moviesFor(recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Movies = movies
	}
	return recs, nil
}

func (s *Store) moviesFor(recommendationID int64) ([]Movie, error) {
	rows, err := s.db.Query(`
		SELECT id, recommendation_id, title, year, genre, description, rating, created_at
		FROM movies WHERE recommendation_id = ? ORDER BY id ASC`, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("querying movies: %w", err)
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		var m Movie
		var createdAt string
		if err := rows.Scan(&m.ID, &m.RecommendationID, &m.Title, &m.Year, &m.Genre, &m.Description, &m.Rating, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// ClearHistory deletes all recommendations for a session; movie rows
// cascade. It returns ErrNotFound when no user exists with that session
// identifier, and otherwise the number of recommendations removed. The
// user row itself is kept.
func (s *Store) ClearHistory(sessionID string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRow(`SELECT id FROM users WHERE session_id = ?`, sessionID).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("looking up user: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM recommendations WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting recommendations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing clear: %w", err)
	}
	return n, nil
}

// --- Statistics ---

// Statistics returns aggregate counts and the five most recent queries
// across all sessions. The average is zero when there are no
// recommendations.
func (s *Store) Statistics() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&st.TotalUsers); err != nil {
		return Stats{}, fmt.Errorf("counting users: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM recommendations`).Scan(&st.TotalRecommendations); err != nil {
		return Stats{}, fmt.Errorf("counting recommendations: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM movies`).Scan(&st.TotalMovies); err != nil {
		return Stats{}, fmt.Errorf("counting movies: %w", err)
	}
	if st.TotalRecommendations > 0 {
		avg := float64(st.TotalMovies) / float64(st.TotalRecommendations)
		st.AvgMoviesPerRec = math.Round(avg*100) / 100
	}

	rows, err := s.db.Query(`
		SELECT r.query, r.created_at, COUNT(m.id)
		FROM recommendations r
		LEFT JOIN movies m ON m.recommendation_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT 5`)
	if err != nil {
		return Stats{}, fmt.Errorf("querying recent activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Activity
		var createdAt string
		if err := rows.Scan(&a.Query, &createdAt, &a.MovieCount); err != nil {
			return Stats{}, err
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return Stats{}, fmt.Errorf("parsing created_at: %w", err)
		}
		st.RecentActivity = append(st.RecentActivity, a)
	}
	return st, rows.Err()
}
