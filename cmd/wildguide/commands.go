package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/wildguide/internal/api"
	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/config"
	"github.com/kalambet/wildguide/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask the survival guide a question, or start an interactive chat",
	Long: `Ask the survival guide a question, or start an interactive chat.

With a question, the answer is streamed and the command exits. Without one,
an interactive session starts; type /clear for a new chat and /quit to leave.

Examples:
  wildguide chat "How do I purify stream water?"
  wildguide chat --image ./berries.jpg "Are these safe to eat?"
  wildguide chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePaths, _ := cmd.Flags().GetStringSlice("image")
		images, err := readImages(imagePaths)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) > 0 {
			_, err := askStream(cmd.Context(), client, strings.Join(args, " "), images, os.Stdout)
			return err
		}
		if len(images) > 0 {
			return fmt.Errorf("--image needs a question")
		}
		return chatLoop(cmd.Context(), client, os.Stdin, os.Stdout)
	},
}

func init() {
	chatCmd.Flags().StringSlice("image", nil, "image file to attach (repeatable)")
}

func readImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}

// askStream sends one message and writes the answer to w as it streams in.
// Each event carries the whole turn so far; only the new suffix is printed.
func askStream(ctx context.Context, c *apiClient, text string, images [][]byte, w io.Writer) (api.MessageEvent, error) {
	var (
		printed string
		last    api.MessageEvent
	)
	err := c.stream(ctx, "/chat/messages", api.MessageRequest{Text: text, Images: images}, func(data []byte) error {
		var ev api.MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		last = ev
		if ev.Error != "" {
			return nil
		}
		content := ev.Turn.Content
		if strings.HasPrefix(content, printed) {
			fmt.Fprint(w, content[len(printed):])
		} else {
			fmt.Fprint(w, "\n"+content)
		}
		printed = content
		return nil
	})
	if err != nil {
		return last, err
	}
	if last.Error != "" {
		if printed != "" {
			fmt.Fprintln(w)
		}
		return last, errors.New(last.Turn.Content)
	}
	fmt.Fprintln(w)
	return last, nil
}

func chatLoop(ctx context.Context, c *apiClient, in io.Reader, w io.Writer) error {
	resp, err := c.get(ctx, "/chat")
	if err != nil {
		return err
	}
	var state api.ChatState
	if err := decodeJSON(resp, &state); err != nil {
		return err
	}
	printTurns(w, state.Turns)
	printQuickPrompts(w, state.QuickPrompts)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, colorize(colorBold, "> "))
		if !sc.Scan() {
			fmt.Fprintln(w)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			resp, err := c.post(ctx, "/chat/clear", nil)
			if err != nil {
				return err
			}
			var fresh api.ChatState
			if err := decodeJSON(resp, &fresh); err != nil {
				return err
			}
			printTurns(w, fresh.Turns)
			continue
		}
		if _, err := askStream(ctx, c, line, nil, w); err != nil {
			printError("%v", err)
		}
	}
}

func printTurns(w io.Writer, turns []chat.Turn) {
	for _, t := range turns {
		if t.IsUser {
			fmt.Fprintln(w, colorize(colorBold, "> "+t.Content))
		} else {
			fmt.Fprintln(w, t.Content)
		}
		if t.HasImages() {
			fmt.Fprintln(w, colorize(colorDim, fmt.Sprintf("  [%d image(s)]", len(t.ImageData))))
		}
		fmt.Fprintln(w)
	}
}

func printQuickPrompts(w io.Writer, prompts []string) {
	if len(prompts) == 0 {
		return
	}
	fmt.Fprintln(w, colorize(colorDim, "Try asking:"))
	for _, p := range prompts {
		fmt.Fprintln(w, colorize(colorDim, "  • "+p))
	}
	fmt.Fprintln(w)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage saved chats",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/sessions?limit=%d", limit))
		if err != nil {
			return err
		}
		var sessions []api.SessionSummary
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}
		printSessions(os.Stdout, sessions)
		return nil
	},
}

func printSessions(w io.Writer, sessions []api.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No saved chats.")
		return
	}
	for _, s := range sessions {
		marker := " "
		if s.Active {
			marker = "*"
		}
		photo := ""
		if s.HasImages {
			photo = " 📷"
		}
		fmt.Fprintf(w, "%s %s  %s  %s (%d messages)%s\n    %s\n",
			marker,
			colorize(colorCyan, shortID(s.ID)),
			s.LastModified.Local().Format(time.DateTime),
			s.Title,
			s.MessageCount,
			photo,
			colorize(colorDim, s.Preview),
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var s chat.Session
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		fmt.Println(colorize(colorBold, s.Title))
		fmt.Println()
		printTurns(os.Stdout, s.Turns)
		return nil
	},
}

var historyOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Make a saved chat the active conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Replaying chat into the model...")
		resp, err := client.post(cmd.Context(), "/sessions/"+url.PathEscape(args[0])+"/open", nil)
		if err != nil {
			return err
		}
		var state api.ChatState
		if err := decodeJSON(resp, &state); err != nil {
			return err
		}
		printSuccess("Opened chat %s (%d turns)", shortID(state.SessionID), len(state.Turns))
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved chat and its bookmarks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result struct {
			BookmarksRemoved int `json:"bookmarks_removed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted chat %s", args[0])
		if result.BookmarksRemoved > 0 {
			printStatus("Bookmarks removed", "%d", result.BookmarksRemoved)
		}
		return nil
	},
}

var historyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a plain-text transcript (user lines wrapped in '*')",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading transcript: %w", err)
		}
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/sessions/import", api.ImportRequest{Title: title, Content: string(data)})
		if err != nil {
			return err
		}
		var s api.SessionSummary
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSuccess("Imported %q as %s (%d messages)", s.Title, shortID(s.ID), s.MessageCount)
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all saved chats as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		w := io.Writer(os.Stdout)
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		n, err := exportSessions(cmd.Context(), client, w)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d chats to %s", n, output)
		}
		return nil
	},
}

// exportSessions pages through /sessions and writes each full session as one
// JSON line.
func exportSessions(ctx context.Context, c *apiClient, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	count := 0
	for offset := 0; ; {
		resp, err := c.get(ctx, fmt.Sprintf("/sessions?limit=100&offset=%d", offset))
		if err != nil {
			return count, err
		}
		var page []api.SessionSummary
		if err := decodeJSON(resp, &page); err != nil {
			return count, err
		}
		if len(page) == 0 {
			return count, nil
		}
		for _, summary := range page {
			resp, err := c.get(ctx, "/sessions/"+url.PathEscape(summary.ID))
			if err != nil {
				return count, err
			}
			var s chat.Session
			if err := decodeJSON(resp, &s); err != nil {
				return count, err
			}
			if err := enc.Encode(s); err != nil {
				return count, err
			}
			count++
		}
		offset += len(page)
	}
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all saved chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL saved chats and their bookmarks. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Deleting chats...")
		failures, err := purgeEndpoint(cmd.Context(), client, "/sessions")
		if err != nil {
			return err
		}
		if failures > 0 {
			return fmt.Errorf("%d chats could not be deleted", failures)
		}
		printSuccess("All chats deleted")
		return nil
	},
}

// purgeEndpoint lists items at path and deletes each one until the list is
// empty. It stops once a pass deletes nothing to avoid looping on failures.
func purgeEndpoint(ctx context.Context, c *apiClient, path string) (int, error) {
	failed := make(map[string]bool)
	for {
		resp, err := c.get(ctx, path+"?limit=100")
		if err != nil {
			return len(failed), err
		}
		var items []struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return len(failed), err
		}

		deleted := 0
		for _, it := range items {
			if failed[it.ID] {
				continue
			}
			resp, err := c.delete(ctx, path+"/"+url.PathEscape(it.ID))
			if err == nil {
				var ignored map[string]any
				err = decodeJSON(resp, &ignored)
			}
			if err != nil {
				printError("Failed to delete %s: %v", it.ID, err)
				failed[it.ID] = true
				continue
			}
			deleted++
		}
		if deleted == 0 {
			return len(failed), nil
		}
	}
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of chats to list")
	historyShowCmd.Flags().Bool("json", false, "print the session as JSON")
	historyImportCmd.Flags().String("title", "", "title for the chat (default: file name)")
	historyExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	historyPurgeCmd.Flags().Bool("confirm", false, "confirm deletion")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyOpenCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyImportCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}

// --- bookmarks ---

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Manage saved answers and guide entries",
}

var bookmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/bookmarks")
		if err != nil {
			return err
		}
		var bookmarks []storage.Bookmark
		if err := decodeJSON(resp, &bookmarks); err != nil {
			return err
		}
		if len(bookmarks) == 0 {
			fmt.Println("No bookmarks.")
			return nil
		}
		for _, b := range bookmarks {
			category := ""
			if b.Category != "" {
				category = " [" + b.Category + "]"
			}
			fmt.Printf("%s  %-5s %s%s\n    %s\n",
				colorize(colorCyan, shortID(b.ID)),
				b.Kind,
				b.Title,
				category,
				colorize(colorDim, b.Preview),
			)
		}
		return nil
	},
}

var bookmarksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Bookmark an answer from a saved chat, or a guide entry",
	Long: `Bookmark an answer from a saved chat, or a guide entry.

Examples:
  wildguide bookmarks add --session <id> --turn <turn-id> --category water
  wildguide bookmarks add --guide --title "Bowline knot" --category skills`,
	RunE: func(cmd *cobra.Command, args []string) error {
		guide, _ := cmd.Flags().GetBool("guide")
		req := api.BookmarkRequest{}
		req.SessionID, _ = cmd.Flags().GetString("session")
		req.TurnID, _ = cmd.Flags().GetString("turn")
		req.Title, _ = cmd.Flags().GetString("title")
		req.Category, _ = cmd.Flags().GetString("category")
		req.Preview, _ = cmd.Flags().GetString("preview")

		req.Kind = storage.KindChat
		if guide {
			req.Kind = storage.KindGuide
		} else if req.SessionID == "" || req.TurnID == "" {
			return fmt.Errorf("--session and --turn are required for chat bookmarks")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/bookmarks", req)
		if err != nil {
			return err
		}
		var b storage.Bookmark
		if err := decodeJSON(resp, &b); err != nil {
			return err
		}
		printSuccess("Bookmarked %q as %s", b.Title, shortID(b.ID))
		return nil
	},
}

var bookmarksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/bookmarks/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted bookmark %s", args[0])
		return nil
	},
}

func init() {
	bookmarksAddCmd.Flags().String("session", "", "session ID of the answer")
	bookmarksAddCmd.Flags().String("turn", "", "turn ID of the answer")
	bookmarksAddCmd.Flags().Bool("guide", false, "bookmark a guide entry instead of a chat answer")
	bookmarksAddCmd.Flags().String("title", "", "bookmark title")
	bookmarksAddCmd.Flags().String("category", "", "category, e.g. water, fire, first aid")
	bookmarksAddCmd.Flags().String("preview", "", "short text shown in lists (guide entries)")

	bookmarksCmd.AddCommand(bookmarksListCmd)
	bookmarksCmd.AddCommand(bookmarksAddCmd)
	bookmarksCmd.AddCommand(bookmarksDeleteCmd)
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
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
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
