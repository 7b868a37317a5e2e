package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/config"
	"github.com/BuzzLyutic/taskboard/internal/demo"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
)

const redisPrefix = "taskboard-demo:"

type rootOptions struct {
	dbPath    string
	redisAddr string
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	var opts rootOptions
	var app *demo.App
	var kv demo.KV

	root := &cobra.Command{
		Use:          "taskboard-demo",
		Short:        "Single-user local task list with mock AI suggestions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			kv, err = openKV(opts)
			if err != nil {
				return err
			}
			app = demo.NewApp(kv, suggest.NewMock(), logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if kv == nil {
				return nil
			}
			return kv.Close()
		},
	}

	defaults := rootOptions{dbPath: "taskboard-demo.db"}
	if cfg, err := config.Load(); err == nil {
		defaults = rootOptions{dbPath: cfg.DemoDBPath, redisAddr: cfg.RedisAddr}
	} else {
		logger.Warn("config not loaded, using defaults", zap.Error(err))
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", defaults.dbPath, "SQLite file holding the task list")
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis", defaults.redisAddr, "Redis address; overrides --db when set")

	appFn := func() *demo.App { return app }
	root.AddCommand(
		newListCmd(appFn),
		newAddCmd(appFn),
		newToggleCmd(appFn),
		newDeleteCmd(appFn),
		newSuggestCmd(appFn),
		newAnalyticsCmd(appFn),
		newSessionCmd(appFn),
	)
	return root
}

func openKV(opts rootOptions) (demo.KV, error) {
	if opts.redisAddr != "" {
		return demo.NewRedisKV(redis.NewClient(&redis.Options{Addr: opts.redisAddr}), redisPrefix), nil
	}
	return demo.NewSQLiteKV(opts.dbPath)
}

func newListCmd(app func() *demo.App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := app().Tasks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks yet.")
				return nil
			}
			for _, t := range tasks {
				fmt.Fprintln(out, formatTask(t))
			}
			return nil
		},
	}
}

func newAddCmd(app func() *demo.App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app().Add(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", formatTask(t))
			return nil
		},
	}
}

func newToggleCmd(app func() *demo.App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a task done or not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app().Toggle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatTask(t))
			return nil
		},
	}
}

func newDeleteCmd(app func() *demo.App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newSuggestCmd(app func() *demo.App) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Generate AI task suggestions and add them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := suggest.ParseMode(model)
			if err != nil {
				return err
			}
			added, err := app().GenerateAITasks(cmd.Context(), mode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added %d AI-generated tasks:\n", len(added))
			for _, t := range added {
				fmt.Fprintln(out, formatTask(t))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", string(suggest.ModeBasic), "suggestion model: basic or advanced")
	return cmd
}

func newAnalyticsCmd(app func() *demo.App) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show completion statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := app().Analytics(cmd.Context(), time.Local)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total tasks:      %d\n", stats.TotalTasks)
			fmt.Fprintf(out, "Completed:        %d\n", stats.CompletedTasks)
			fmt.Fprintf(out, "AI generated:     %d\n", stats.AIGeneratedTasks)
			if stats.AverageCompletionTime != nil {
				fmt.Fprintf(out, "Avg completion:   %.1f min\n", *stats.AverageCompletionTime)
			} else {
				fmt.Fprintln(out, "Avg completion:   n/a")
			}
			for _, day := range stats.UserActivity {
				fmt.Fprintf(out, "%s  %d\n", day.Date, day.Count)
			}
			return nil
		},
	}
}

func newSessionCmd(app func() *demo.App) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Print the session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app().SessionID(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func formatTask(t demo.Task) string {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	line := fmt.Sprintf("[%s] %s  %s", mark, t.ID, t.Text)
	if t.AIGenerated {
		line += "  (AI)"
	}
	return line
}
