package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/elijahmorgan/cowrap/internal/build"
	"github.com/elijahmorgan/cowrap/internal/decl"
	generr "github.com/elijahmorgan/cowrap/internal/errors"
	"github.com/elijahmorgan/cowrap/internal/logging"
	"github.com/elijahmorgan/cowrap/internal/project"
)

const usage = `usage: cowrap [command] [flags] [input]

Commands:
  gen      Generate wrappers from input (default; stdin to stdout)
  build    Generate every job in cowrap.yaml
  watch    Rebuild jobs whenever an input changes
  check    Report problems in declarations without generating
  version  Print the generator version

Flags:
  -config file  Configuration file (default: cowrap.yaml found upwards)
  -o file       Output file for gen (default: stdout)
  -j N          Parallel jobs for build and watch
  -force        Regenerate outputs that are up to date
  -v            Verbose logging on stderr`

var (
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F"))
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))
)

var stderrTTY = term.IsTerminal(int(os.Stderr.Fd()))

// errProblems means check already printed its findings.
var errProblems = errors.New("declarations have errors")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errProblems) {
			fmt.Fprintf(os.Stderr, "%s %s\n", style(errorStyle, "error:"), generr.Snippet(err))
		}
		os.Exit(1)
	}
}

func style(s lipgloss.Style, text string) string {
	if !stderrTTY {
		return text
	}
	return s.Render(text)
}

// flags holds the options shared by every command.
type flags struct {
	config  string
	output  string
	jobs    int
	force   bool
	verbose bool
	args    []string
}

func parseFlags(args []string) (flags, error) {
	f := flags{jobs: runtime.GOMAXPROCS(0)}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			if i+1 >= len(args) {
				return f, fmt.Errorf("-config requires an argument")
			}
			f.config = args[i+1]
			i++
		case "-o":
			if i+1 >= len(args) {
				return f, fmt.Errorf("-o requires an argument")
			}
			f.output = args[i+1]
			i++
		case "-j":
			if i+1 >= len(args) {
				return f, fmt.Errorf("-j requires an argument")
			}
			if _, err := fmt.Sscanf(args[i+1], "%d", &f.jobs); err != nil {
				return f, fmt.Errorf("invalid -j value: %v", err)
			}
			i++
		case "-force", "--force":
			f.force = true
		case "-v", "--verbose":
			f.verbose = true
		case "-":
			f.args = append(f.args, args[i])
		default:
			if strings.HasPrefix(args[i], "-") {
				return f, fmt.Errorf("unknown flag: %s", args[i])
			}
			f.args = append(f.args, args[i])
		}
	}

	if len(f.args) > 1 {
		return f, fmt.Errorf("expected at most one input, got %d", len(f.args))
	}
	return f, nil
}

func run(args []string) error {
	cmd := "gen"
	if len(args) > 0 {
		switch args[0] {
		case "gen", "build", "watch", "check", "version", "help":
			cmd = args[0]
			args = args[1:]
		case "-h", "--help":
			cmd = "help"
		}
	}

	if cmd == "help" {
		fmt.Println(usage)
		return nil
	}
	if cmd == "version" {
		fmt.Printf("cowrap %s\n", project.Version)
		return nil
	}

	f, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("%w\n\n%s", err, usage)
	}

	logger, err := logging.NewCLI(f.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logging.SetLogger(logger)

	switch cmd {
	case "build":
		return runBuild(f)
	case "watch":
		return runWatch(f)
	case "check":
		return runCheck(f)
	default:
		return runGen(f)
	}
}

// loadConfig reads the -config file, or the nearest cowrap.yaml, or falls
// back to the built-in defaults when there is none.
func loadConfig(path string) (project.Config, error) {
	if path != "" {
		return project.Load(path)
	}

	proj, err := project.Discover(".")
	if err != nil {
		if errors.Is(err, generr.ErrConfig) {
			return project.Config{}, err
		}
		logging.Logger().Debug("no project config, using defaults", zap.Error(err))
		return project.Default(), nil
	}
	return proj.Config, nil
}

func openProject(path string) (*project.Project, error) {
	if path != "" {
		return project.Open(path)
	}
	proj, err := project.Discover(".")
	if err != nil {
		return nil, fmt.Errorf("project discovery failed: %w", err)
	}
	return proj, nil
}

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), "<stdin>", nil
	}
	file, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to open input: %w", err)
	}
	return file, args[0], nil
}

func runGen(f flags) error {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}

	in, name, err := readInput(f.args)
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	out, n, err := build.GenerateBytes(src, cfg)
	if err != nil {
		return err
	}

	if f.output == "" {
		if _, err := os.Stdout.Write(out); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(f.output), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(f.output, out, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	logging.Logger().Info("generated", zap.String("input", name), zap.Int("decls", n))
	return nil
}

func runBuild(f flags) error {
	proj, err := openProject(f.config)
	if err != nil {
		return err
	}
	if len(proj.Config.Jobs) == 0 {
		return fmt.Errorf("%s has no jobs", proj.ConfigPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := build.Build(ctx, proj, build.Options{Jobs: f.jobs, Force: f.force})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	printResults(proj, results)
	return nil
}

func runWatch(f flags) error {
	proj, err := openProject(f.config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "watching %d job(s) in %s\n", len(proj.Config.Jobs), proj.RootPath)
	return build.Watch(ctx, proj, build.WatchOptions{
		Options: build.Options{Jobs: f.jobs, Force: f.force},
		Report: func(results []build.Result, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s\n", style(errorStyle, "error:"), generr.Snippet(err))
				return
			}
			printResults(proj, results)
		},
	})
}

func printResults(proj *project.Project, results []build.Result) {
	for _, r := range results {
		rel, err := filepath.Rel(proj.RootPath, r.Output)
		if err != nil {
			rel = r.Output
		}
		if r.Skipped {
			fmt.Fprintf(os.Stderr, "%s (up to date)\n", rel)
			continue
		}
		fmt.Fprintf(os.Stderr, "%s %s (%d wrappers)\n", style(okStyle, "wrote"), rel, r.Decls)
	}
}

func runCheck(f flags) error {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}

	in, name, err := readInput(f.args)
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	diags := build.Check(src, cfg)
	for _, d := range diags {
		switch d.Severity {
		case decl.SeverityError:
			fmt.Fprintf(os.Stderr, "%s:%d: %s %s\n", name, d.Line, style(errorStyle, "error:"), generr.Snippet(d.Err))
		default:
			fmt.Fprintf(os.Stderr, "%s:%d: %s %s\n", name, d.Line, style(warnStyle, "warning:"), d.Message)
		}
	}

	if build.HasErrors(diags) {
		return errProblems
	}
	return nil
}
