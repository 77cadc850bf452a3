package recommend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Movie is one validated recommendation.
type Movie struct {
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	Genre       string  `json:"genre"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
}

// containerKeys are the object keys checked, in order, when the model
// wraps the movie array in an object instead of returning it top-level.
var containerKeys = []string{"movies", "recommendations", "results"}

var requiredFields = []string{"title", "year", "genre", "description", "rating"}

// extractArray cleans raw model output into a candidate JSON array:
// code fences are stripped and the text is sliced from the first '['
// to the last ']'. When no bracket pair is found the text passes
// through unchanged and the parser reports the failure.
func extractArray(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.ReplaceAll(s, "```json", "")
		s = strings.ReplaceAll(s, "```", "")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start != -1 && end > start {
		s = s[start : end+1]
	}
	return s
}

// parseMovies parses extractor output into a validated movie list.
// The whole batch is rejected if any element is missing a required
// field or a field cannot be coerced to its expected type.
func parseMovies(s string) ([]Movie, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Err: err}
	}

	list, err := resolveList(v)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &ValidationError{Reason: "empty movie list"}
	}

	movies := make([]Movie, 0, len(list))
	for i, el := range list {
		fields, ok := el.(map[string]any)
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("element %d is not an object", i)}
		}
		m, err := coerceMovie(fields)
		if err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, nil
}

// resolveList accepts either a top-level array or an object wrapping
// the array under one of the enumerated container keys.
func resolveList(v any) ([]any, error) {
	if list, ok := v.([]any); ok {
		return list, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ValidationError{Reason: "expected array of movies"}
	}
	for _, key := range containerKeys {
		if inner, ok := obj[key].([]any); ok {
			return inner, nil
		}
	}
	return nil, &ValidationError{Reason: "expected array of movies"}
}

func coerceMovie(fields map[string]any) (Movie, error) {
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return Movie{}, &ValidationError{Reason: "missing required field: " + f}
		}
	}

	year, err := coerceInt(fields["year"])
	if err != nil {
		return Movie{}, &ValidationError{Reason: "year: " + err.Error()}
	}
	rating, err := coerceFloat(fields["rating"])
	if err != nil {
		return Movie{}, &ValidationError{Reason: "rating: " + err.Error()}
	}

	return Movie{
		Title:       coerceString(fields["title"]),
		Year:        year,
		Genre:       coerceString(fields["genre"]),
		Description: coerceString(fields["description"]),
		Rating:      rating,
	}, nil
}

func coerceInt(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(t.String()); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", t.String())
		}
		return int(f), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", t)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func coerceFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", t.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
