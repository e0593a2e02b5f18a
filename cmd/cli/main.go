package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"aca-sandbox/internal/app"
	"aca-sandbox/internal/config"
	"aca-sandbox/internal/lesson"
	"aca-sandbox/internal/runtime"
	"aca-sandbox/internal/sandbox"
)

// errRunFailed signals a snippet failure already reported to the user.
var errRunFailed = errors.New("run failed")

var (
	configPath     string
	verbose        bool
	language       string
	capabilities   string
	assumeYes      bool
	requireConfirm bool
	lessonName     string
	readLines      int
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "aca",
		Short:         "Run, lint and inspect learning snippets in a restricted sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Config file (defaults apply when missing)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	runCmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Execute a snippet",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLocal,
	}
	runCmd.Flags().StringVarP(&language, "language", "l", "", "Language (python, go); detected from the file extension")
	runCmd.Flags().StringVarP(&capabilities, "capabilities", "c", "", "Capability set (basic, extended)")
	runCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Confirm execution without prompting")
	runCmd.Flags().BoolVar(&requireConfirm, "confirm", false, "Ask before running")
	runCmd.Flags().StringVar(&lessonName, "lesson", "", "Run a built-in lesson instead of a file")
	root.AddCommand(runCmd)

	for _, tool := range []struct {
		use, short string
		fn         func(ctx context.Context, a *app.App, lang, code string) string
	}{
		{"lint", "Report style issues line by line", func(ctx context.Context, a *app.App, lang, code string) string {
			_, text := a.Service.Lint(ctx, lang, code)
			return text
		}},
		{"analyze", "Count functions, loops and branches", func(ctx context.Context, a *app.App, lang, code string) string {
			_, text := a.Service.Analyze(ctx, lang, code)
			return text
		}},
		{"suggest", "Suggest improvements", func(ctx context.Context, a *app.App, lang, code string) string {
			_, text := a.Service.Suggest(ctx, lang, code)
			return text
		}},
		{"explain", "Summarize what a snippet defines", func(ctx context.Context, a *app.App, lang, code string) string {
			return a.Service.Explain(ctx, lang, code)
		}},
	} {
		fn := tool.fn
		cmd := &cobra.Command{
			Use:   tool.use + " [file|-]",
			Short: tool.short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				code, lang, err := readSource(cmd, args)
				if err != nil {
					return err
				}
				return withApp(cmd, func(ctx context.Context, a *app.App) error {
					fmt.Fprintln(cmd.OutOrStdout(), fn(ctx, a, lang, code))
					return nil
				})
			},
		}
		cmd.Flags().StringVarP(&language, "language", "l", "", "Language (python, go); detected from the file extension")
		cmd.Flags().StringVar(&lessonName, "lesson", "", "Use a built-in lesson instead of a file")
		root.AddCommand(cmd)
	}

	readCmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Show the first lines of a file in the sandbox directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				fmt.Fprint(cmd.OutOrStdout(), a.Service.Read(ctx, args[0], readLines))
				return nil
			})
		},
	}
	readCmd.Flags().IntVarP(&readLines, "lines", "n", 0, "Number of lines (default from config)")
	root.AddCommand(readCmd)

	root.AddCommand(&cobra.Command{
		Use:   "manifest",
		Short: "Show the last-run manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				entry, err := a.Service.LastRun(ctx)
				if err != nil {
					return err
				}
				out, _ := json.MarshalIndent(entry, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "lessons [name]",
		Short: "List built-in lessons, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLessons,
	})

	root.AddCommand(newRemoteCmd())

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		}
		os.Exit(1)
	}
}

// withApp builds the sandbox from the config file for one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if requireConfirm {
		cfg.Sandbox.RequireConfirmation = true
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Build(ctx, cfg, sandbox.WithConfirmer(promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runLocal(cmd *cobra.Command, args []string) error {
	code, lang, err := readSource(cmd, args)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Service.Run(ctx, sandbox.ExecutionRequest{
			Source:       code,
			Language:     lang,
			Capabilities: capabilities,
			Confirmed:    assumeYes,
		})
		if err != nil {
			return err
		}

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		if res.Skipped {
			muted(errOut, "%s", res.Output)
			return nil
		}

		fmt.Fprint(out, res.Output)
		if res.Output != "" && res.Output[len(res.Output)-1] != '\n' {
			fmt.Fprintln(out)
		}

		switch {
		case res.Succeeded:
			status(errOut, true, "%s ran in %dms", res.Language, res.ElapsedMillis())
		default:
			fmt.Fprintln(errOut, res.Detail)
			status(errOut, false, "%s", res.Category)
		}
		if res.Warning != "" {
			warn(errOut, res.Warning)
		}
		if !res.Succeeded {
			return errRunFailed
		}
		return nil
	})
}

// readSource loads code from --lesson, a file, or stdin ("-" or no
// argument) and settles the language: the flag wins, then the lesson or
// file extension.
func readSource(cmd *cobra.Command, args []string) (code, lang string, err error) {
	lang = language

	if lessonName != "" {
		catalog, err := lesson.Builtin()
		if err != nil {
			return "", "", err
		}
		l, ok := catalog.Lookup(lessonName)
		if !ok {
			return "", "", fmt.Errorf("unknown lesson %q (see 'aca lessons')", lessonName)
		}
		if lang == "" {
			lang = l.Language
		}
		return l.Source, lang, nil
	}

	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), lang, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("reading file: %w", err)
	}
	if lang == "" {
		if rt, ok := runtime.NewRegistry().ForFile(args[0]); ok {
			lang = rt.Name()
		}
	}
	return string(data), lang, nil
}

func runLessons(cmd *cobra.Command, args []string) error {
	catalog, err := lesson.Builtin()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		l, ok := catalog.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown lesson %q", args[0])
		}
		fmt.Fprint(out, l.Source)
		return nil
	}

	track := ""
	for _, l := range catalog.All() {
		if l.Track != track {
			track = l.Track
			fmt.Fprintln(out, titleStyle.Render(track))
		}
		fmt.Fprintf(out, "  %-24s %s\n", l.Name, mutedStyle.Render(l.Language))
	}
	return nil
}
