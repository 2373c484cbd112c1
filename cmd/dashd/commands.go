package main

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dashd/dashd/internal/composer"
	"github.com/dashd/dashd/internal/config"
	"github.com/dashd/dashd/internal/storage"
)

// --- todo ---

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage todos",
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos, open ones first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/todos")
		if err != nil {
			return err
		}
		var todos []storage.Todo
		if err := decodeJSON(resp, &todos); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(todos) == 0 {
			fmt.Fprintln(out, "No todos.")
			return nil
		}
		for _, t := range todos {
			fmt.Fprintln(out, formatTodo(t))
		}
		return nil
	},
}

func formatTodo(t storage.Todo) string {
	if t.IsCompleted {
		return fmt.Sprintf("[x] %s  %s", colorize(colorCyan, t.ID), colorize(colorDim, t.Task))
	}
	return fmt.Sprintf("[ ] %s  %s", colorize(colorCyan, t.ID), t.Task)
}

var todoAddCmd = &cobra.Command{
	Use:   "add <task>",
	Short: "Add a todo",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/todos", map[string]string{"task": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var t storage.Todo
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		printSuccess("Added todo %s", t.ID)
		return nil
	},
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Flip a todo between open and done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/todos/"+url.PathEscape(args[0])+"/flip", nil)
		if err != nil {
			return err
		}
		var t storage.Todo
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		if t.IsCompleted {
			printSuccess("Done: %s", t.Task)
		} else {
			printSuccess("Reopened: %s", t.Task)
		}
		return nil
	},
}

var todoRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a todo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/todos/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted todo %s", args[0])
		return nil
	},
}

func init() {
	todoCmd.AddCommand(todoListCmd, todoAddCmd, todoDoneCmd, todoRmCmd)
}

// --- note ---

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage diary notes",
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/notes?limit=%d", limit))
		if err != nil {
			return err
		}
		var notes []storage.Note
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(notes) == 0 {
			fmt.Fprintln(out, "No notes.")
			return nil
		}
		for _, n := range notes {
			fmt.Fprintf(out, "%s  %s\n", colorize(colorCyan, n.ID), colorize(colorDim, n.CreatedAt.Local().Format("2006-01-02 15:04")))
			fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(n.Content, "\n", "\n  "))
			if n.ImageURL != "" {
				fmt.Fprintf(out, "  %s\n", colorize(colorDim, "image: "+n.ImageURL))
			}
		}
		return nil
	},
}

var noteAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Write a note (reads stdin when no text is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")

		content := strings.Join(args, " ")
		if content == "" {
			data, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			content = strings.TrimRight(string(data), "\n")
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("note text is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var n storage.Note
		if image != "" {
			printStep("Uploading %s", image)
			resp, err := client.postNoteWithImage(cmd.Context(), content, image)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &n); err != nil {
				return err
			}
		} else {
			resp, err := client.post(cmd.Context(), "/api/notes", map[string]string{"content": content})
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &n); err != nil {
				return err
			}
		}
		printSuccess("Added note %s", n.ID)
		return nil
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <id> <text>",
	Short: "Replace the text of a note",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/api/notes/"+url.PathEscape(args[0]),
			map[string]string{"content": strings.Join(args[1:], " ")})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Updated note %s", args[0])
		return nil
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/notes/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted note %s", args[0])
		return nil
	},
}

func init() {
	noteListCmd.Flags().Int("limit", 20, "maximum number of notes to list")
	noteAddCmd.Flags().String("image", "", "path of an image to attach")
	noteCmd.AddCommand(noteListCmd, noteAddCmd, noteEditCmd, noteRmCmd)
}

// --- asset ---

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Record and list asset values",
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the asset-value series",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/assets")
		if err != nil {
			return err
		}
		var assets []storage.AssetRecord
		if err := decodeJSON(resp, &assets); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(assets) == 0 {
			fmt.Fprintln(out, "No asset records.")
			return nil
		}
		for _, a := range assets {
			fmt.Fprintf(out, "%s  %14s\n", a.RecordDate.Format(storage.DateLayout), strconv.FormatFloat(a.Amount, 'f', 2, 64))
		}
		return nil
	},
}

var assetAddCmd = &cobra.Command{
	Use:   "add <amount> [date]",
	Short: "Record an asset value (date defaults to today, YYYY-MM-DD)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[0])
		}
		date := time.Now().Format(storage.DateLayout)
		if len(args) == 2 {
			if _, err := time.Parse(storage.DateLayout, args[1]); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[1])
			}
			date = args[1]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/assets", map[string]any{"date": date, "amount": amount})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Recorded %s on %s", strconv.FormatFloat(amount, 'f', 2, 64), date)
		return nil
	},
}

func init() {
	assetCmd.AddCommand(assetListCmd, assetAddCmd)
}

// --- news ---

var newsCmd = &cobra.Command{
	Use:   "news [query]",
	Short: "Show current headlines",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if len(args) > 0 {
			q.Set("q", strings.Join(args, " "))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/headlines?"+q.Encode())
		if err != nil {
			return err
		}
		var headlines []composer.Headline
		if err := decodeJSON(resp, &headlines); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(headlines) == 0 {
			fmt.Fprintln(out, "No headlines available.")
			return nil
		}
		for _, h := range headlines {
			fmt.Fprintf(out, "• %s\n", colorize(colorBold, h.Text))
			if h.Source != "" {
				fmt.Fprintf(out, "  %s\n", colorize(colorDim, h.Source))
			}
		}
		return nil
	},
}

func init() {
	newsCmd.Flags().Int("limit", 8, "maximum number of headlines")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send a prompt to the generative-text provider",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/chat", map[string]string{"prompt": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var result struct {
			Response string `json:"response"`
			Kind     string `json:"kind"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result.Kind != "ok" {
			printWarning("%s", result.Response)
			return fmt.Errorf("chat failed: %s", result.Kind)
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Response)
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

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		for _, k := range config.SecretKeys() {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k), colorize(colorDim, "(secret)"))
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

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Store a secret (read from stdin) in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stderr, "Enter value for %s: ", args[0])
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("reading value: %w", err)
		}
		value := strings.TrimSpace(line)
		if value == "" {
			return fmt.Errorf("empty value")
		}
		if err := config.SetSecret(args[0], value); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}
