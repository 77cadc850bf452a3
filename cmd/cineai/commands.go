package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cineai/internal/config"
)

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend <preference>",
	Short: "Ask for five movie recommendations",
	Long: `Ask for five movie recommendations.

Examples:
  cineai recommend "mind-bending sci-fi"
  cineai recommend --session my-session "feel-good comedies from the 90s"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"query": query}
		if sessionID != "" {
			body["session_id"] = sessionID
		}

		resp, err := client.post(cmd.Context(), "/api/recommend", body)
		if err != nil {
			return err
		}

		var result struct {
			SessionID string `json:"session_id"`
			Movies    []struct {
				Title       string  `json:"title"`
				Year        int     `json:"year"`
				Genre       string  `json:"genre"`
				Description string  `json:"description"`
				Rating      float64 `json:"rating"`
			} `json:"movies"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for i, m := range result.Movies {
			header := fmt.Sprintf("%d. %s (%d)", i+1, m.Title, m.Year)
			fmt.Printf("\n%s  %.1f\n", colorize(colorBold, header), m.Rating)
			fmt.Printf("  %s\n", colorize(colorCyan, m.Genre))
			fmt.Printf("  %s\n", m.Description)
		}
		fmt.Println()
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

func init() {
	recommendCmd.Flags().String("session", "", "session identifier (generated if omitted)")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show past recommendations for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/history/%s?limit=%d", args[0], limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Recommendations []struct {
				ID        int64  `json:"id"`
				Query     string `json:"query"`
				CreatedAt string `json:"created_at"`
				Movies    []struct {
					Title string `json:"title"`
					Year  int    `json:"year"`
				} `json:"movies"`
			} `json:"recommendations"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Recommendations) == 0 {
			fmt.Println("No history found.")
			return nil
		}

		for _, rec := range result.Recommendations {
			query := rec.Query
			if len(query) > 80 {
				query = query[:80] + "..."
			}
			fmt.Printf("\n%s  %s\n", colorize(colorCyan, rec.CreatedAt), colorize(colorBold, query))
			for _, m := range rec.Movies {
				fmt.Printf("  - %s (%d)\n", m.Title, m.Year)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 10, "maximum number of history entries")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/statistics")
		if err != nil {
			return err
		}

		var result struct {
			Statistics struct {
				TotalUsers           int     `json:"total_users"`
				TotalRecommendations int     `json:"total_recommendations"`
				TotalMovies          int     `json:"total_movies"`
				AvgMovies            float64 `json:"average_movies_per_recommendation"`
			} `json:"statistics"`
			RecentActivity []struct {
				Query      string `json:"query"`
				MovieCount int    `json:"movie_count"`
				Timestamp  string `json:"timestamp"`
			} `json:"recent_activity"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Users", "%d", result.Statistics.TotalUsers)
		printStatus("Recommendations", "%d", result.Statistics.TotalRecommendations)
		printStatus("Movies", "%d", result.Statistics.TotalMovies)
		printStatus("Avg movies/query", "%.2f", result.Statistics.AvgMovies)

		if len(result.RecentActivity) > 0 {
			fmt.Println("\nRecent activity:")
			for _, a := range result.RecentActivity {
				query := a.Query
				if len(query) > 60 {
					query = query[:60] + "..."
				}
				fmt.Printf("  %s  %s (%d movies)\n", colorize(colorCyan, a.Timestamp), query, a.MovieCount)
			}
		}
		return nil
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete all stored recommendations for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/clear-history/"+args[0])
		if err != nil {
			return err
		}

		var result struct {
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s", result.Message)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
