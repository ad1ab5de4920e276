package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elijahmorgan/cowrap/internal/codegen"
	"github.com/elijahmorgan/cowrap/internal/decl"
	"github.com/elijahmorgan/cowrap/internal/logging"
	"github.com/elijahmorgan/cowrap/internal/paths"
	"github.com/elijahmorgan/cowrap/internal/project"
)

// Options contains build configuration
type Options struct {
	Jobs  int  // Number of parallel generation jobs
	Force bool // Regenerate even when outputs are up to date
}

// Result describes one generated job.
type Result struct {
	Input   string
	Output  string
	Decls   int
	Skipped bool // output was already up to date
}

// Generate reads the whole declaration stream from r and writes the
// generated source to w: the preamble, then one block per declaration in
// input order. Nothing is written unless every declaration generates.
func Generate(r io.Reader, w io.Writer, cfg project.Config) (int, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read declarations: %w", err)
	}

	out, n, err := GenerateBytes(src, cfg)
	if err != nil {
		return 0, err
	}

	if _, err := w.Write(out); err != nil {
		return 0, fmt.Errorf("failed to write output: %w", err)
	}
	return n, nil
}

// GenerateBytes is Generate over in-memory text. It returns the generated
// source and the number of declarations it contains.
func GenerateBytes(src []byte, cfg project.Config) ([]byte, int, error) {
	e := codegen.New(cfg)
	s := decl.NewScanner(string(src), e.Grammar())

	var buf bytes.Buffer
	buf.WriteString(e.Preamble())
	buf.WriteString("\n")

	n := 0
	for fn, err := range s.All() {
		if err != nil {
			return nil, 0, err
		}

		block, err := e.Block(fn)
		if err != nil {
			return nil, 0, err
		}

		buf.WriteString("\n\n")
		buf.WriteString(block)
		buf.WriteString("\n")
		n++

		logging.Logger().Debug("generated wrapper",
			zap.String("wrapper", fn.Name),
			zap.Int("line", fn.Line),
			zap.Int("params", len(fn.Params)))
	}

	return buf.Bytes(), n, nil
}

// Build runs every job of the project, up to opts.Jobs at a time. The first
// failure cancels jobs that have not started yet.
func Build(ctx context.Context, proj *project.Project, opts Options) ([]Result, error) {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := make([]Result, len(proj.Config.Jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, job := range proj.Config.Jobs {
		input, output := proj.Resolve(job)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := buildJob(proj, input, output, opts.Force)
			if err != nil {
				return fmt.Errorf("%s: %w", relPath(proj.RootPath, input), err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BuildJob generates a single job regardless of timestamps.
func BuildJob(proj *project.Project, job project.Job) (Result, error) {
	input, output := proj.Resolve(job)
	return buildJob(proj, input, output, true)
}

func buildJob(proj *project.Project, input, output string, force bool) (Result, error) {
	res := Result{Input: input, Output: output}

	if !force && !needsRegenerate(proj.ConfigPath, input, output) {
		res.Skipped = true
		logging.Logger().Debug("up to date", zap.String("output", output))
		return res, nil
	}

	src, err := os.ReadFile(input)
	if err != nil {
		return res, fmt.Errorf("failed to read input: %w", err)
	}

	out, n, err := GenerateBytes(src, proj.Config)
	if err != nil {
		return res, err
	}

	if err := writeFileAtomic(output, out); err != nil {
		return res, err
	}

	res.Decls = n
	logging.Logger().Info("generated",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("decls", n))
	return res, nil
}

// needsRegenerate reports whether output is missing or older than its input
// or the configuration that shaped it.
func needsRegenerate(configPath, input, output string) bool {
	outTime := fileModTime(output)
	if outTime.IsZero() {
		return true
	}
	for _, dep := range []string{input, configPath} {
		if dep == "" {
			continue
		}
		t := fileModTime(dep)
		if t.IsZero() || t.After(outTime) {
			return true
		}
	}
	return false
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader never sees a partially generated file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := paths.TempPath(path)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Helper to check file modification time
func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
