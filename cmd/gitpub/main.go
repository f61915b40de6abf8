package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gitpub-go/internal/app"
	"gitpub-go/internal/config"
	"gitpub-go/internal/gitpub"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a GitpubApp for the repository
// containing the current directory. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.GitpubApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	a, err := app.NewGitpubApp(ctx, cfg, cwd)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "gitpub",
	Short:        "Publish documents from a git repository to remote document stores",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("History DB:  %s\n", cfg.HistoryDB)
		fmt.Printf("VCS Backend: %s\n", cfg.VCS.Backend)
		fmt.Printf("Remotes:     %d\n", len(cfg.Remotes))
		return nil
	},
}

// remote command
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect remotes",
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured remotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		if len(cfg.Remotes) == 0 {
			fmt.Println("No remotes configured.")
			return nil
		}
		for _, r := range cfg.Remotes {
			branch := r.Branch
			if branch == "" {
				branch = gitpub.DefaultTrackingBranch(r.Name)
			}
			fmt.Printf("%-15s  %-10s  %s\n", r.Name, r.Type, branch)
		}
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add REMOTE PATH...",
	Short: "Stage documents for publication",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		rawAttrs, _ := cmd.Flags().GetStringToString("attr")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var attrs map[string]string
		if len(rawAttrs) > 0 {
			attrs = rawAttrs
		}
		added, err := a.Add(cmd.Context(), args[0], args[1:], recursive, attrs)
		if err != nil {
			return fmt.Errorf("staging: %w", err)
		}

		fmt.Printf("Staged %d document(s)\n", len(added))
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm REMOTE PATH...",
	Short: "Stage removal of documents from a remote",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.Rm(cmd.Context(), args[0], args[1:])
		if err != nil {
			return fmt.Errorf("staging removal: %w", err)
		}

		fmt.Printf("Staged removal of %d document(s)\n", len(removed))
		return nil
	},
}

// commit command
var commitCmd = &cobra.Command{
	Use:   "commit REMOTE",
	Short: "Publish staged changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		diff, err := a.Commit(cmd.Context(), args[0], message)
		if errors.Is(err, gitpub.ErrNothingStaged) {
			fmt.Println("Nothing staged.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}

		printSummary(diff)
		return nil
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push REMOTE",
	Short: "Publish changed documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		diff, err := a.Push(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		printSummary(diff)
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch REMOTE",
	Short: "Import remote documents onto the tracking branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		written, err := a.Fetch(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}

		for _, p := range written {
			fmt.Println(p)
		}
		fmt.Printf("Fetched %d document(s)\n", len(written))
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status REMOTE",
	Short: "Show what the next commit or push would publish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		diff, err := a.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if diff.Empty() {
			fmt.Println("Nothing to publish.")
			return nil
		}
		printStatus(os.Stdout, diff, term.IsTerminal(int(os.Stdout.Fd())))
		return nil
	},
}

// printStatus lists the diff one entry per line. On a terminal the kinds are
// spelled out and aligned; otherwise a one-letter code and a tab precede
// each entry.
func printStatus(w io.Writer, d *gitpub.Diff, human bool) {
	groups := []struct {
		code, label string
		keys        []string
	}{
		{"N", "new:", d.New},
		{"M", "changed:", d.Changed},
		{"D", "deleted:", d.Deleted},
	}
	for _, g := range groups {
		for _, k := range g.keys {
			if human {
				fmt.Fprintf(w, "  %-9s %s\n", g.label, k)
			} else {
				fmt.Fprintf(w, "%s\t%s\n", g.code, k)
			}
		}
	}
}

func printSummary(d *gitpub.Diff) {
	if d == nil || d.Empty() {
		fmt.Println("Remote is up to date.")
		return
	}
	fmt.Printf("Published: %d new, %d changed, %d deleted\n", len(d.New), len(d.Changed), len(d.Deleted))
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View synchronization history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rounds, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(rounds) == 0 {
			fmt.Println("No rounds recorded.")
			return nil
		}

		for _, r := range rounds {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			line := fmt.Sprintf("#%d  %-7s  %-15s  %s  %-7s  %3d  %s",
				r.ID,
				r.Operation,
				r.Remote,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Changed,
				duration,
			)
			if r.Error != "" {
				line += "  " + firstLine(r.Error)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// remote subcommands
	remoteCmd.AddCommand(remoteListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	addCmd.Flags().StringToStringP("attr", "a", nil, "Remote attribute as key=value (repeatable)")
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringP("message", "m", "", "Commit message for the tracking branch")
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of rounds to show")
}
