// Package cli implements tareasctl, a command line client for a tareas
// server.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/push"
)

const defaultConfigPath = "~/.tareasctl.yaml"

type app struct {
	v          *viper.Viper
	configPath string
	json       bool
}

// New builds the root command.
func New() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "tareasctl",
		Short:         "Manage tasks on a tareas server from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "Client config file.")
	cmd.PersistentFlags().String("server", "http://localhost:8080", "Server base URL.")
	cmd.PersistentFlags().BoolVar(&a.json, "json", false, "Output as JSON.")

	cmd.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.tasksCmd(),
		a.syncCmd(),
		a.importCmd(),
		a.summaryCmd(),
		a.healthCmd(),
		vapidCmd(),
	)
	return cmd
}

// load reads the config file, TAREAS_* env and flags, in increasing
// precedence.
func (a *app) load(cmd *cobra.Command) error {
	path, err := homedir.Expand(a.configPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	a.configPath = path

	a.v.SetConfigFile(path)
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix("TAREAS")
	a.v.AutomaticEnv()
	a.v.SetDefault("server", "http://localhost:8080")
	if f := cmd.Flags().Lookup("server"); f != nil && f.Changed {
		if err := a.v.BindPFlag("server", f); err != nil {
			return err
		}
	}

	if err := a.v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func (a *app) client() *Client {
	return NewClient(a.v.GetString("server"), a.v.GetString("token"))
}

func (a *app) save() error {
	if err := a.v.WriteConfigAs(a.configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(a.configPath, 0o600)
}

// print writes v as JSON when --json is set, otherwise calls pretty.
func (a *app) print(w io.Writer, v any, pretty func()) error {
	if a.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	pretty()
	return nil
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session token.",
		Example: `
tareasctl login --email ana@example.com --password secreto123
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("TAREAS_PASSWORD")
			}
			var resp struct {
				Token string     `json:"token"`
				User  model.User `json:"user"`
			}
			err := a.client().Do(cmd.Context(), http.MethodPost, "/api/auth/login",
				map[string]string{"email": email, "password": password}, &resp)
			if err != nil {
				return err
			}
			a.v.Set("token", resp.Token)
			if err := a.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", color.New(color.Bold).Sprint(resp.User.Email))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email.")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or TAREAS_PASSWORD).")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.v.GetString("token") == "" {
				return nil
			}
			err := a.client().Do(cmd.Context(), http.MethodPost, "/api/auth/logout", nil, nil)
			var apiErr *APIError
			if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized) {
				return err
			}
			a.v.Set("token", "")
			return a.save()
		},
	}
}

func (a *app) tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "t"},
		Short:   "List and change tasks.",
	}
	cmd.AddCommand(a.tasksListCmd(), a.tasksAddCmd(), a.tasksStatusCmd("done", model.StatusCompleted), a.tasksStatusCmd("start", model.StatusInProgress))
	return cmd
}

func (a *app) tasksListCmd() *cobra.Command {
	var status, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, soonest due first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if priority != "" {
				q.Set("priority", priority)
			}
			path := "/api/tasks"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var tasks []model.Task
			if err := a.client().Do(cmd.Context(), http.MethodGet, path, nil, &tasks); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), tasks, func() {
				printTasks(cmd.OutOrStdout(), tasks, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status.")
	cmd.Flags().StringVar(&priority, "priority", "", "Filter by priority.")
	return cmd
}

var priorityColors = map[model.Priority]*color.Color{
	model.PriorityLow:    color.New(color.Faint),
	model.PriorityMedium: color.New(),
	model.PriorityHigh:   color.New(color.FgYellow),
	model.PriorityUrgent: color.New(color.FgRed, color.Bold),
}

func printTasks(w io.Writer, tasks []model.Task, now time.Time) {
	if len(tasks) == 0 {
		color.New(color.Faint, color.Italic).Fprintln(w, " no tasks")
		return
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 50
	tbl.AddRow("ID", "PRIORITY", "STATUS", "DUE", "TITLE")
	for _, t := range tasks {
		c, ok := priorityColors[t.Priority]
		if !ok {
			c = color.New()
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.In(time.Local).Format("2006-01-02 15:04")
			if t.Overdue(now) {
				due = color.RedString(due)
			}
		}
		tbl.AddRow(t.ID, c.Sprint(t.Priority), t.Status, due, t.Title)
	}
	fmt.Fprintln(w, tbl)
}

func (a *app) tasksAddCmd() *cobra.Command {
	var priority, due, description string
	var tags []string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task.",
		Args:  cobra.MinimumNArgs(1),
		Example: `
tareasctl tasks add "Informe de laboratorio" --priority high --due 2025-03-10T18:00 --tag fisica
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"title":       strings.Join(args, " "),
				"description": description,
				"priority":    priority,
				"tags":        tags,
			}
			if due != "" {
				t, err := parseDue(due)
				if err != nil {
					return err
				}
				body["due_date"] = t
			}
			var task model.Task
			if err := a.client().Do(cmd.Context(), http.MethodPost, "/api/tasks", body, &task); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), task, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %d: %s\n", task.ID, task.Title)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high or urgent.")
	cmd.Flags().StringVar(&due, "due", "", "Due date (2006-01-02 or 2006-01-02T15:04, local time).")
	cmd.Flags().StringVar(&description, "description", "", "Longer description.")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag name; repeatable.")
	return cmd
}

// parseDue accepts a date (due at end of day) or a local date-time.
func parseDue(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q", s)
	}
	return t.Add(24*time.Hour - time.Second), nil
}

func (a *app) tasksStatusCmd(use string, status model.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Mark a task %s.", strings.ReplaceAll(string(status), "_", " ")),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			var task model.Task
			err = a.client().Do(cmd.Context(), http.MethodPatch, fmt.Sprintf("/api/tasks/%d/status", id),
				map[string]string{"status": string(status)}, &task)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), task, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("✓"), task.Title)
			})
		},
	}
}

type syncReport struct {
	Added    int      `json:"added"`
	Skipped  int      `json:"skipped"`
	Ignored  int      `json:"ignored"`
	Errors   []string `json:"errors"`
	Strategy string   `json:"strategy"`
}

func printReport(w io.Writer, r syncReport) {
	tbl := uitable.New()
	tbl.AddRow("Added:", color.GreenString("%d", r.Added))
	tbl.AddRow("Already imported:", r.Skipped)
	tbl.AddRow("Not tasks:", r.Ignored)
	fmt.Fprintln(w, tbl)
	for _, e := range r.Errors {
		fmt.Fprintln(w, color.YellowString("  ! %s", e))
	}
}

func (a *app) syncCmd() *cobra.Command {
	var proxy bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import new assignments from the Moodle calendar.",
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy := "direct"
			if proxy {
				strategy = "proxy"
			}
			var report syncReport
			err := a.client().Do(cmd.Context(), http.MethodPost, "/api/sync/moodle",
				map[string]string{"strategy": strategy}, &report)
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryWith != "" {
				return fmt.Errorf("%s; try again with --%s", apiErr.Message, apiErr.RetryWith)
			}
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), report, func() { printReport(cmd.OutOrStdout(), report) })
		},
	}
	cmd.Flags().BoolVar(&proxy, "proxy", false, "Download through the configured proxy.")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import tasks from a calendar file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := homedir.Expand(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var report syncReport
			if err := a.client().Upload(cmd.Context(), "/api/sync/moodle/import", "text/calendar", data, &report); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), report, func() { printReport(cmd.OutOrStdout(), report) })
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show today's summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var s struct {
				Date                string   `json:"date"`
				CompletedCount      int      `json:"completedCount"`
				PendingCount        int      `json:"pendingCount"`
				OverdueCount        int      `json:"overdueCount"`
				Highlights          []string `json:"highlights"`
				Recommendations     []string `json:"recommendations"`
				MotivationalMessage string   `json:"motivationalMessage"`
			}
			if err := a.client().Do(cmd.Context(), http.MethodGet, "/api/assist/daily-summary", nil, &s); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), s, func() {
				w := cmd.OutOrStdout()
				color.New(color.Bold, color.Underline).Fprintln(w, s.Date)
				fmt.Fprintf(w, "%d completed, %d pending, %s\n\n", s.CompletedCount, s.PendingCount,
					color.RedString("%d overdue", s.OverdueCount))
				for _, h := range s.Highlights {
					fmt.Fprintf(w, "  • %s\n", h)
				}
				for _, r := range s.Recommendations {
					fmt.Fprintf(w, "  → %s\n", r)
				}
				if s.MotivationalMessage != "" {
					color.New(color.Italic).Fprintf(w, "\n%s\n", s.MotivationalMessage)
				}
			})
		},
	}
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server and local model answer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var h struct {
				Status          string `json:"status"`
				OllamaConnected bool   `json:"ollama_connected"`
			}
			if err := a.client().Do(cmd.Context(), http.MethodGet, "/health", nil, &h); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), h, func() {
				ollama := color.GreenString("connected")
				if !h.OllamaConnected {
					ollama = color.YellowString("unreachable")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "server: %s\nollama: %s\n", h.Status, ollama)
			})
		},
	}
}

func vapidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for push notifications.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "TAREAS_VAPID_PUBLIC_KEY=%s\nTAREAS_VAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}
