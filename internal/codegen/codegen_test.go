package codegen

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elijahmorgan/cowrap/internal/decl"
	generr "github.com/elijahmorgan/cowrap/internal/errors"
	"github.com/elijahmorgan/cowrap/internal/project"
)

func scanOne(t *testing.T, e *Emitter, line string) *decl.Function {
	t.Helper()
	fns, err := decl.NewScanner(line, e.Grammar()).Scan()
	require.NoError(t, err)
	require.Len(t, fns, 1)
	return fns[0]
}

// structFields returns the member lines between "typedef struct X {" and "} X;".
func structFields(t *testing.T, block string) []string {
	t.Helper()
	lines := strings.Split(block, "\n")
	start, end := -1, -1
	for i, l := range lines {
		if strings.HasPrefix(l, "typedef struct ") {
			start = i
		}
		if start >= 0 && strings.HasPrefix(l, "} ") {
			end = i
			break
		}
	}
	require.True(t, start >= 0 && end > start, "no struct in block")
	fields := make([]string, 0, end-start-1)
	for _, l := range lines[start+1 : end] {
		fields = append(fields, strings.TrimSpace(l))
	}
	return fields
}

const scenarioA = `/*
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
}`

func TestBlockPrimaryHandle(t *testing.T) {
	e := New(project.Default())
	fn := scanOne(t, e, "int generated_co_wrapper bdrv_foo(BlockDriverState *bs, int64_t offset);")

	block, err := e.Block(fn)
	require.NoError(t, err)
	assert.Equal(t, scenarioA, block)

	fields := structFields(t, block)
	assert.Equal(t, []string{"BdrvPollCo poll_state;", "BlockDriverState *bs;", "int64_t offset;"}, fields)
}

func TestBlockChildHandle(t *testing.T) {
	e := New(project.Default())
	fn := scanOne(t, e, "int generated_co_wrapper bdrv_readv_vmstate(BdrvChild *child, QEMUIOVector *qiov, int64_t pos);")

	block, err := e.Block(fn)
	require.NoError(t, err)

	assert.Contains(t, block, "            .poll_state.bs = child->bs,\n")
	assert.NotContains(t, block, ".poll_state.bs = child,")
	assert.Contains(t, block, "            .child = child,\n")
	assert.Contains(t, block, "s->poll_state.ret = bdrv_co_readv_vmstate(s->child, s->qiov, s->pos);")
	assert.Contains(t, block, "typedef struct BdrvCoReadvVmstate {")
}

func TestBlockVoid(t *testing.T) {
	e := New(project.Default())
	fn := scanOne(t, e, "void generated_co_wrapper bdrv_bar(BlockDriverState *bs);")

	block, err := e.Block(fn)
	require.NoError(t, err)

	assert.NotContains(t, block, ".ret")
	assert.NotContains(t, block, "return")
	assert.Contains(t, block, "\n    bdrv_co_bar(s->bs);\n")
	assert.Contains(t, block, "\n        bdrv_co_bar(bs);\n")
	assert.Contains(t, block, "\n        bdrv_poll_co(&s.poll_state);\n")
	assert.Contains(t, block, "void bdrv_bar(BlockDriverState *bs)\n{")
	assert.Len(t, structFields(t, block), 2)
}

func TestBlockValueReturnsPollResult(t *testing.T) {
	e := New(project.Default())
	fn := scanOne(t, e, "int generated_co_wrapper bdrv_flush(BlockDriverState *bs);")

	block, err := e.Block(fn)
	require.NoError(t, err)

	assert.Contains(t, block, "        return bdrv_co_flush(bs);\n    } else {")
	assert.Contains(t, block, "        return bdrv_poll_co(&s.poll_state);\n    }\n}")
	assert.Contains(t, block, "    s->poll_state.ret = bdrv_co_flush(s->bs);\n")
}

func TestFieldCount(t *testing.T) {
	e := New(project.Default())
	lines := []string{
		"int generated_co_wrapper bdrv_a(BlockDriverState *bs);",
		"int generated_co_wrapper bdrv_b(BdrvChild *child, int64_t offset, unsigned int bytes, QEMUIOVector *qiov, BdrvRequestFlags flags);",
		"void generated_co_wrapper bdrv_c(BlockDriverState *bs, Error **errp);",
	}

	for _, line := range lines {
		fn := scanOne(t, e, line)
		block, err := e.Block(fn)
		require.NoError(t, err)

		fields := structFields(t, block)
		require.Len(t, fields, 1+len(fn.Params), line)
		for i, p := range fn.Params {
			assert.Equal(t, p.Decl+";", fields[i+1])
		}
	}
}

func TestHandleTypeExhaustive(t *testing.T) {
	e := New(project.Default())

	accepted := []string{
		"int generated_co_wrapper bdrv_a(BlockDriverState *bs);",
		"int generated_co_wrapper bdrv_b(BlockDriverState* bs);",
		"int generated_co_wrapper bdrv_c(BdrvChild *c);",
	}
	for _, line := range accepted {
		_, err := e.Block(scanOne(t, e, line))
		assert.NoError(t, err, line)
	}

	rejected := []string{
		"int generated_co_wrapper bdrv_d(BlockBackend *blk);",
		"int generated_co_wrapper bdrv_e(int64_t offset, BlockDriverState *bs);",
		"int generated_co_wrapper bdrv_f(BlockDriverState **bs);",
		"int generated_co_wrapper bdrv_g(BlockDriverState bs);",
	}
	for _, line := range rejected {
		_, err := e.Block(scanOne(t, e, line))
		require.Error(t, err, line)
		assert.True(t, stderrors.Is(err, generr.ErrPrecondition), line)

		var ge *generr.Error
		require.True(t, stderrors.As(err, &ge))
		assert.Equal(t, generr.PhaseEmit, ge.Phase)
		assert.Equal(t, 1, ge.Line)
	}
}

func TestTargetUsesParameterName(t *testing.T) {
	e := New(project.Default())

	target, err := e.Target(scanOne(t, e, "int generated_co_wrapper bdrv_a(BlockDriverState *state);"))
	require.NoError(t, err)
	assert.Equal(t, "state", target)

	target, err = e.Target(scanOne(t, e, "int generated_co_wrapper bdrv_b(BdrvChild *file);"))
	require.NoError(t, err)
	assert.Equal(t, "file->bs", target)

	_, err = e.Target(&decl.Function{Name: "bdrv_empty"})
	assert.True(t, stderrors.Is(err, generr.ErrPrecondition))
}

func TestBlockMissingPrefix(t *testing.T) {
	e := New(project.Default())
	fn := scanOne(t, e, "int generated_co_wrapper blk_foo(BlockDriverState *bs);")

	_, err := e.Block(fn)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, generr.ErrPrecondition))

	var ge *generr.Error
	require.True(t, stderrors.As(err, &ge))
	assert.Equal(t, generr.PhaseDerive, ge.Phase)
	assert.Equal(t, "blk_foo", ge.Decl)
	assert.Equal(t, 1, ge.Line)
}

func TestBlockDeterministic(t *testing.T) {
	e := New(project.Default())
	fn := scanOne(t, e, "int generated_co_wrapper bdrv_check(BlockDriverState *bs, BdrvCheckResult *res, BdrvCheckMode fix);")

	first, err := e.Block(fn)
	require.NoError(t, err)
	second, err := New(project.Default()).Block(fn)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCustomRuntime(t *testing.T) {
	cfg := project.Default()
	cfg.Marker = "co_wrapper"
	cfg.Prefix = project.PrefixConfig{Wrapper: "blk_", Coroutine: "blk_co_"}
	cfg.Returns.Value = "ssize_t"
	cfg.Handles = project.HandleConfig{Primary: "BlockBackend *", Child: "BlockChild *", Owner: "blk"}
	cfg.Runtime.CoroutineFn = ""
	cfg.Runtime.TargetField = "blk"
	cfg.Runtime.Poll = "blk_poll_co"

	e := New(cfg)
	fn := scanOne(t, e, "ssize_t co_wrapper blk_pread(BlockBackend *blk, int64_t offset);")

	block, err := e.Block(fn)
	require.NoError(t, err)

	assert.Contains(t, block, "static void blk_co_pread_entry(void *opaque)\n")
	assert.Contains(t, block, "ssize_t blk_pread(BlockBackend *blk, int64_t offset)\n")
	assert.Contains(t, block, ".poll_state.blk = blk,")
	assert.Contains(t, block, "return blk_poll_co(&s.poll_state);")
	assert.Contains(t, block, "typedef struct BlkCoPread {")
}

func TestPreamble(t *testing.T) {
	e := New(project.Default())
	assert.Equal(t, `/*
 * File is generated by cowrap
 */

#include "qemu/osdep.h"
#include "block/coroutines.h"
#include "block/block-gen.h"`, e.Preamble())

	cfg := project.Default()
	cfg.Header.Includes = nil
	assert.Equal(t, "/*\n * File is generated by cowrap\n */", New(cfg).Preamble())
}
