// Package recommend turns a free-text movie preference into a validated
// list of movie recommendations via an upstream language model.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chatter is the single model call the service depends on.
type Chatter interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = "You are a helpful movie recommendation assistant. " +
	"You ONLY respond with valid JSON arrays containing movie data. " +
	"Never include markdown formatting or explanations."

const promptTemplate = `You are a movie expert AI assistant. Based on the user's preference: %q, recommend exactly 5 movies.

Return ONLY a valid JSON array with this exact format (no markdown, no explanation, no extra text):
[
  {"title": "Movie Name", "year": 2024, "genre": "Action, Drama", "description": "Brief 2-3 sentence description of the movie plot and why it's recommended.", "rating": 8.5}
]

IMPORTANT REQUIREMENTS:
- Return exactly 5 movies
- Use real movies with accurate release years
- Genre should be comma-separated string (e.g., "Action, Thriller")
- Rating must be between 6.0 and 10.0 as a float
- Description should be 2-3 sentences explaining the plot and why it matches the user's preference
- Return ONLY the JSON array with no additional text, no markdown code blocks, no explanations
- Ensure the JSON is properly formatted and valid`

// Service orchestrates prompt construction, the model call, and
// extraction/validation of the response. It never touches storage.
type Service struct {
	client Chatter
}

// NewService creates a Service. A nil client is allowed: Generate then
// reports ErrNotConfigured and Configured returns false, which keeps
// the rest of the API usable without a model credential.
func NewService(client Chatter) *Service {
	return &Service{client: client}
}

// Configured reports whether a model client is available.
func (s *Service) Configured() bool { return s.client != nil }

// Generate produces a validated movie list for the query. It makes a
// single synchronous model call with no retries; any upstream failure
// surfaces directly to the caller.
func (s *Service) Generate(ctx context.Context, query string) ([]Movie, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	raw, err := s.client.ChatCompletion(ctx, systemPrompt, fmt.Sprintf(promptTemplate, query))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	content := extractArray(raw)
	movies, err := parseMovies(content)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			// The raw content is logged here only; callers get a generic message.
			slog.Warn("model response is not valid JSON", "error", perr.Err, "content", content)
		}
		return nil, err
	}
	return movies, nil
}
