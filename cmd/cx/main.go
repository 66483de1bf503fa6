package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cx-go/internal/app"
	"cx-go/internal/config"
	"cx-go/internal/progress"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CXApp. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.CXApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewCXApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads a line without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "cx",
	Short:        "Export CAD projects to files",
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

		cfg := config.NewConfig(defaults["base_dir"], defaults["output_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Library:    %s\n", cfg.Library.Root)
		fmt.Printf("Output Dir: %s\n", cfg.OutputDir)
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

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		logDir := cfg.LogDir
		if logDir == "" {
			logDir = "(output directory)"
		}
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Output Dir: %s\n", cfg.OutputDir)
		fmt.Printf("Log Dir:    %s\n", logDir)
		fmt.Printf("Library:    %s\n", cfg.Library.Type)
		fmt.Printf("Project:    %s\n", cfg.Project)
		fmt.Printf("Formats:    %s\n", strings.Join(cfg.Formats, ", "))
		fmt.Printf("Encryption: %t\n", cfg.Encryption.Enabled)
		fmt.Printf("History:    %s\n", cfg.Database.Type)
		return nil
	},
}

// projects command
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects in the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.ListProjects(ctx)
		if err != nil {
			return err
		}

		if len(names) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		for _, n := range names {
			marker := "  "
			if n == a.DefaultProject() {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, n)
		}
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		formats, _ := cmd.Flags().GetStringSlice("format")
		projects, _ := cmd.Flags().GetStringSlice("project")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skipExisting, _ := cmd.Flags().GetBool("skip-existing")
		verbose, _ := cmd.Flags().GetBool("verbose")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, p := range projects {
			if _, err := a.FindProject(ctx, p); err != nil {
				return err
			}
		}

		bar := progress.NewTerminal(os.Stderr)
		stop := progress.WatchInterrupt(ctx, bar)
		defer stop()

		res, err := a.Export(ctx, app.ExportOperation{
			OutputDir:    out,
			Formats:      formats,
			Projects:     projects,
			DryRun:       dryRun,
			SkipExisting: skipExisting,
			Verbose:      verbose,
		}, bar)
		if err != nil {
			logPath := ""
			if res != nil {
				logPath = res.LogPath
			}
			color.New(color.FgRed).Fprint(os.Stderr, app.FailureReport(err, logPath))
			return errors.New("export failed")
		}

		printSummary(res)
		return nil
	},
}

// printSummary prints app.Summary, coloring the lines that need attention.
func printSummary(res *app.ExportResult) {
	summary := app.Summary(res.Counter, res.LogPath, res.Cancelled)
	for _, line := range strings.Split(strings.TrimSuffix(summary, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "Export was cancelled"):
			color.New(color.FgYellow).Println(line)
		case strings.HasPrefix(line, "Saved") && res.Counter.Saved > 0:
			color.New(color.FgGreen).Println(line)
		case strings.HasPrefix(line, "Encountered") && res.Counter.Errored > 0:
			color.New(color.FgRed).Println(line)
		default:
			fmt.Println(line)
		}
	}
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "View export history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			return printExports(a, args[0])
		}

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No export runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			dry := ""
			if r.DryRun {
				dry = "  [dry run]"
			}
			fmt.Printf("%s  %-20s  %s  %-10s  %-8s  %s%s\n",
				r.ID,
				r.Project,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.Counter,
				dry,
			)
		}
		return nil
	},
}

func printExports(a *app.CXApp, runID string) error {
	exports, err := a.ListExports(runID)
	if err != nil {
		return err
	}
	if len(exports) == 0 {
		fmt.Println("No exports recorded for this run.")
		return nil
	}
	for _, e := range exports {
		line := fmt.Sprintf("%-8s  %-6s  %s v%d", e.Status, e.Format, e.FileName, e.Version)
		if e.Destination != "" {
			line += "  -> " + e.Destination
		}
		if e.Error != "" {
			line += "  (" + e.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage sealing keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to seal exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.InitKeys(passphrase); err != nil {
			return err
		}
		fmt.Println("Keys created. Set [encryption] enabled = true to seal exports.")
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt FILE...",
	Short: "Decrypt sealed exports next to themselves",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		plain, err := a.Decrypt(passphrase, args)
		for _, p := range plain {
			fmt.Printf("Decrypted %s\n", p)
		}
		return err
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("out", "o", "", "Output directory (default: output_dir from config)")
	exportCmd.Flags().StringSliceP("format", "f", nil, "Formats to export, in order (default: formats from config)")
	exportCmd.Flags().StringSliceP("project", "p", nil, "Project to export; only the first match in library order is exported")
	exportCmd.Flags().Bool("dry-run", false, "Walk the project and log what would be exported")
	exportCmd.Flags().Bool("skip-existing", false, "Skip exports whose destination already exists")
	exportCmd.Flags().BoolP("verbose", "v", false, "Mirror the run log to stderr")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
}
