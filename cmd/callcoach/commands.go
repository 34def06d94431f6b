package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/callcoach/internal/api"
	"github.com/kalambet/callcoach/internal/config"
	"github.com/kalambet/callcoach/internal/feedback"
)

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions with a live connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listSessions(cmd.Context(), client, stdout)
	},
}

func listSessions(ctx context.Context, client *apiClient, w io.Writer) error {
	var resp api.SessionsResponse
	if err := client.getJSON(ctx, "/admin/sessions", &resp); err != nil {
		return err
	}
	if resp.Count == 0 {
		fmt.Fprintln(w, "No live sessions.")
		return nil
	}
	for _, s := range resp.Sessions {
		fmt.Fprintf(w, "%s  bound %s\n", colorize(colorCyan, s.ID), s.BoundAt.Format(time.RFC3339))
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect conversation history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "Show the most recent exchanges of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showHistory(cmd.Context(), client, stdout, args[0], limit, asJSON)
	},
}

func init() {
	historyShowCmd.Flags().Int("limit", 10, "maximum number of exchanges")
	historyShowCmd.Flags().Bool("json", false, "print raw JSON")
	historyCmd.AddCommand(historyShowCmd)
}

func showHistory(ctx context.Context, client *apiClient, w io.Writer, sessionID string, limit int, asJSON bool) error {
	path := fmt.Sprintf("/admin/sessions/%s/history?limit=%d", url.PathEscape(sessionID), limit)

	var resp api.HistoryResponse
	if err := client.getJSON(ctx, path, &resp); err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, resp)
	}
	if len(resp.Exchanges) == 0 {
		fmt.Fprintf(w, "No exchanges for session %s.\n", sessionID)
		return nil
	}
	for _, ex := range resp.Exchanges {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, ex.Timestamp.Format("15:04:05")), colorize(colorCyan, ex.ResponseID))
		fmt.Fprintf(w, "  customer: %s\n", truncate(ex.Transcript, 200))
		fmt.Fprintf(w, "  suggest:  %s\n", truncate(ex.Response, 200))
	}
	return nil
}

// --- response ---

var responseCmd = &cobra.Command{
	Use:   "response <response_id>",
	Short: "Show the exchange a guidance response id belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var resp api.ResponseLookup
		if err := client.getJSON(cmd.Context(), "/admin/responses/"+url.PathEscape(args[0]), &resp); err != nil {
			return err
		}
		return writeJSON(stdout, resp)
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Inspect agent feedback",
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listFeedback(cmd.Context(), client, stdout, limit)
	},
}

var feedbackSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count helpful and not-helpful feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var sum feedback.Summary
		if err := client.getJSON(cmd.Context(), "/admin/feedback/summary", &sum); err != nil {
			return err
		}
		printStatus("Total", "%d", sum.Total)
		printStatus("Helpful", "%d", sum.Helpful)
		printStatus("Not helpful", "%d", sum.NotHelpful)
		printStatus("Helpful rate", "%s", helpfulRate(sum))
		return nil
	},
}

func init() {
	feedbackListCmd.Flags().Int("limit", 20, "maximum number of records")
	feedbackCmd.AddCommand(feedbackListCmd)
	feedbackCmd.AddCommand(feedbackSummaryCmd)
}

func listFeedback(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	var records []feedback.Record
	if err := client.getJSON(ctx, fmt.Sprintf("/admin/feedback?limit=%d", limit), &records); err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No feedback recorded.")
		return nil
	}
	for _, r := range records {
		verdict := colorize(colorGreen, "helpful")
		if !r.Helpful {
			verdict = colorize(colorRed, "not helpful")
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n", r.Timestamp.Format(time.RFC3339), r.SessionID, r.ResponseID, verdict)
	}
	return nil
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
		showConfig(stdout, cfg)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the platform config store.

Secret keys (completion.api_key, translator.api_key, server.admin_token)
are written to the platform secret store instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List valid configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(stdout, k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}

func showConfig(w io.Writer, cfg config.Config) {
	for _, k := range config.ShowAll(cfg) {
		fmt.Fprintf(w, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
