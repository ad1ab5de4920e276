package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const scenarioA = `/*
 * File is generated by cowrap
 */

#include "qemu/osdep.h"
#include "block/coroutines.h"
#include "block/block-gen.h"


/*
 * Wrappers for bdrv_co_foo
 */

typedef struct BdrvCoFoo {
    BdrvPollCo poll_state;
    BlockDriverState *bs;
    int64_t offset;
} BdrvCoFoo;

static void coroutine_fn bdrv_co_foo_entry(void *opaque)
{
    BdrvCoFoo *s = opaque;

    s->poll_state.ret = bdrv_co_foo(s->bs, s->offset);

    s->poll_state.in_progress = false;

    bdrv_poll_co__on_exit();
}

int bdrv_foo(BlockDriverState *bs, int64_t offset)
{
    if (qemu_in_coroutine()) {
        return bdrv_co_foo(bs, offset);
    } else {
        BdrvCoFoo s = {
            .poll_state.bs = bs,
            .poll_state.in_progress = true,

            .bs = bs,
            .offset = offset,
        };

        s.poll_state.co = qemu_coroutine_create(bdrv_co_foo_entry, &s);

        return bdrv_poll_co(&s.poll_state);
    }
}
`

// TestScenarioA pipes one primary-handle declaration through the binary.
func TestScenarioA(t *testing.T) {
	stdout, stderr, err := runCowrap(t, t.TempDir(), "int generated_co_wrapper bdrv_foo(BlockDriverState *bs, int64_t offset);\n")
	if err != nil {
		t.Fatalf("cowrap failed: %v\nstderr: %s", err, stderr)
	}
	if stdout != scenarioA {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

// TestScenarioB checks the child-handle polling target.
func TestScenarioB(t *testing.T) {
	stdout, stderr, err := runCowrap(t, t.TempDir(), "int generated_co_wrapper bdrv_readv_vmstate(BdrvChild *child, QEMUIOVector *qiov, int64_t pos);\n")
	if err != nil {
		t.Fatalf("cowrap failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, ".poll_state.bs = child->bs,") {
		t.Errorf("expected target child->bs, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "typedef struct BdrvCoReadvVmstate {") {
		t.Errorf("expected struct BdrvCoReadvVmstate, got:\n%s", stdout)
	}
}

// TestScenarioC checks the void return shape.
func TestScenarioC(t *testing.T) {
	stdout, stderr, err := runCowrap(t, t.TempDir(), "void generated_co_wrapper bdrv_bar(BlockDriverState *bs);\n")
	if err != nil {
		t.Fatalf("cowrap failed: %v\nstderr: %s", err, stderr)
	}
	if strings.Contains(stdout, ".ret") || strings.Contains(stdout, "return ") {
		t.Errorf("void wrapper must not store or return a result:\n%s", stdout)
	}
	if !strings.Contains(stdout, "        bdrv_poll_co(&s.poll_state);\n") {
		t.Errorf("expected a bare poll call:\n%s", stdout)
	}
}

// TestScenarioD checks that a malformed parameter fails with no output.
func TestScenarioD(t *testing.T) {
	input := "int generated_co_wrapper bdrv_ok(BlockDriverState *bs);\nint generated_co_wrapper bdrv_foo(BlockDriverState);\n"
	stdout, stderr, err := runCowrap(t, t.TempDir(), input)
	if err == nil {
		t.Fatal("expected cowrap to fail")
	}
	if stdout != "" {
		t.Errorf("expected no output, got:\n%s", stdout)
	}
	if !strings.Contains(stderr, "bdrv_foo") || !strings.Contains(stderr, "line 2") {
		t.Errorf("diagnostic should name bdrv_foo and line 2, got: %s", stderr)
	}
}

// TestEmptyInput emits only the preamble.
func TestEmptyInput(t *testing.T) {
	stdout, _, err := runCowrap(t, t.TempDir(), "")
	if err != nil {
		t.Fatalf("cowrap failed: %v", err)
	}
	if !strings.HasSuffix(stdout, "#include \"block/block-gen.h\"\n") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

// TestBuildProject runs every job of a cowrap.yaml project.
func TestBuildProject(t *testing.T) {
	dir := t.TempDir()

	config := `requires: ">= 1.0.0"
jobs:
  - input: include/block/block.h
`
	if err := os.WriteFile(filepath.Join(dir, "cowrap.yaml"), []byte(config), 0644); err != nil {
		t.Fatalf("failed to create cowrap.yaml: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "include", "block"), 0755); err != nil {
		t.Fatalf("failed to create include dir: %v", err)
	}
	header := "int generated_co_wrapper bdrv_flush(BlockDriverState *bs);\n"
	if err := os.WriteFile(filepath.Join(dir, "include", "block", "block.h"), []byte(header), 0644); err != nil {
		t.Fatalf("failed to create block.h: %v", err)
	}

	cmd := exec.Command(cowrapBinary(t), "build")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("cowrap build failed: %v\nOutput: %s", err, output)
	}

	gen, err := os.ReadFile(filepath.Join(dir, "include", "block", "block-gen.c"))
	if err != nil {
		t.Fatalf("failed to read block-gen.c: %v", err)
	}
	if !strings.Contains(string(gen), "int bdrv_flush(BlockDriverState *bs)") {
		t.Errorf("block-gen.c missing wrapper:\n%s", gen)
	}
}

// TestCheck reports every problem and fails on errors.
func TestCheck(t *testing.T) {
	input := `int generated_co_wrapper bdrv_ok(BlockDriverState *bs);
long generated_co_wrapper bdrv_long(BlockDriverState *bs);
int generated_co_wrapper bdrv_blk(BlockBackend *blk);
`
	cmd := exec.Command(cowrapBinary(t), "check")
	cmd.Dir = t.TempDir()
	cmd.Stdin = strings.NewReader(input)
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatal("expected check to fail")
	}
	if !strings.Contains(string(output), "<stdin>:2: warning:") {
		t.Errorf("missing warning for line 2: %s", output)
	}
	if !strings.Contains(string(output), "<stdin>:3: error:") {
		t.Errorf("missing error for line 3: %s", output)
	}
}

func runCowrap(t *testing.T, dir, input string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(cowrapBinary(t), args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
	buildOut  []byte
)

// cowrapBinary builds the CLI once per test run.
func cowrapBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "cowrap-integration")
		if err != nil {
			buildErr = err
			return
		}
		binPath = filepath.Join(dir, "cowrap")
		cmd := exec.Command("go", "build", "-o", binPath, "./cmd/cowrap")
		cmd.Dir = filepath.Join("..", "..")
		buildOut, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("failed to build cowrap: %v\n%s", buildErr, buildOut)
	}
	return binPath
}
