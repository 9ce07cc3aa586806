package pass

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CharlieCurry/incubator-tvm/compiler/tir"
)

type fixture struct {
	src, dst, buf *tir.Var
	i, j, k       *tir.Var

	root tir.Stmt
}

// copyIn builds the usual shape: for i in [0, n) allocate buf[m] in
// shared memory, fill it from src under a double buffer scope, then
// consume it into dst.
func copyIn(n, m int64) *fixture {
	f := &fixture{
		src: &tir.Var{Name: "src"},
		dst: &tir.Var{Name: "dst"},
		buf: &tir.Var{Name: "buf"},
		i:   &tir.Var{Name: "i"},
		j:   &tir.Var{Name: "j"},
		k:   &tir.Var{Name: "k"},
	}

	produce := &tir.AttrStmt{
		Node:  f.buf,
		Key:   tir.AttrDoubleBufferScope,
		Value: tir.Int(1),
		Body: &tir.For{Var: f.j, Min: tir.Int(0), Extent: tir.Int(m), Body: &tir.Store{
			Buffer: f.buf,
			Value:  tir.Load{Buffer: f.src, Index: tir.Add{L: tir.Mul{L: f.i, R: tir.Int(m)}, R: f.j}},
			Index:  f.j,
		}},
	}

	consume := &tir.For{Var: f.k, Min: tir.Int(0), Extent: tir.Int(m), Body: &tir.Store{
		Buffer: f.dst,
		Value:  tir.Load{Buffer: f.buf, Index: f.k},
		Index:  tir.Add{L: tir.Mul{L: f.i, R: tir.Int(m)}, R: f.k},
	}}

	f.root = &tir.For{
		Var: f.i, Min: tir.Int(0), Extent: tir.Int(n),
		Body: &tir.AttrStmt{
			Node:  f.buf,
			Key:   tir.AttrStorageScope,
			Value: tir.StringImm{Value: "shared"},
			Body: &tir.Allocate{
				Buffer:  f.buf,
				Elem:    tir.Float32,
				Extents: []tir.Expr{tir.Int(m)},
				Cond:    tir.Int(1),
				Body:    tir.SeqStmt{produce, consume},
			},
		},
	}

	return f
}

func TestNoOpWithoutScopes(t *testing.T) {
	i := &tir.Var{Name: "i"}
	buf := &tir.Var{Name: "buf"}

	s := tir.Stmt(&tir.For{Var: i, Min: tir.Int(0), Extent: tir.Int(4), Body: &tir.Store{
		Buffer: buf, Value: tir.Int(0), Index: i,
	}})

	out, err := InjectDoubleBuffer(context.Background(), s, 2)
	require.NoError(t, err)
	require.True(t, out == s, "tree without double buffer scopes must pass through untouched")
}

func TestBareReferenceDisqualifies(t *testing.T) {
	f := copyIn(8, 16)

	// observing the buffer as a value excludes it from rewriting
	s := tir.SeqStmt{f.root, &tir.Evaluate{Value: f.buf}}

	out, err := InjectDoubleBuffer(context.Background(), s, 0)
	require.NoError(t, err)

	seq, ok := out.(tir.SeqStmt)
	require.True(t, ok)
	require.Len(t, seq, 2)
	require.True(t, seq[0] == tir.Stmt(f.root), "disqualified buffer must pass through untouched")
}

func TestInject(t *testing.T) {
	f := copyIn(8, 16)

	out, err := InjectDoubleBuffer(context.Background(), f.root, 0)
	require.NoError(t, err)

	// allocation is hoisted out of the loop, scope tag reattached
	attr, ok := out.(*tir.AttrStmt)
	require.True(t, ok, "want storage scope attr at the top, got %T", out)
	assert.Equal(t, tir.AttrStorageScope, attr.Key)
	assert.Equal(t, f.buf, attr.Node)
	assert.Equal(t, tir.Expr(tir.StringImm{Value: "shared"}), attr.Value)

	alloc, ok := attr.Body.(*tir.Allocate)
	require.True(t, ok)
	assert.Equal(t, f.buf, alloc.Buffer)
	assert.Equal(t, []tir.Expr{tir.Int(2), tir.Int(16)}, alloc.Extents)

	body, ok := alloc.Body.(tir.SeqStmt)
	require.True(t, ok)
	require.Len(t, body, 2)

	// prologue fills half 0 regardless of the loop
	pre, ok := body[0].(*tir.For)
	require.True(t, ok, "want prologue loop, got %T", body[0])
	require.Equal(t, f.j, pre.Var, "first binding of j keeps its identity")

	st := pre.Body.(*tir.Store)
	assert.Equal(t, f.buf, st.Buffer)
	assert.Equal(t, index(tir.Int(0), f.j), st.Index)
	assert.Equal(t, tir.Expr(tir.Load{Buffer: f.src, Index: index(tir.Int(0), f.j)}), st.Value)

	loop, ok := body[1].(*tir.For)
	require.True(t, ok)
	require.Equal(t, f.i, loop.Var)

	seq, ok := loop.Body.(tir.SeqStmt)
	require.True(t, ok)
	require.Len(t, seq, 2)

	// steady state prefetches iteration i+1, guarded at the end
	guard, ok := seq[0].(*tir.IfThenElse)
	require.True(t, ok, "want guarded prefetch, got %T", seq[0])
	assert.Equal(t, tir.Expr(tir.LT{L: shift(f.i), R: tir.Int(8)}), guard.Cond)
	assert.Nil(t, guard.Else)

	mark, ok := guard.Then.(*tir.AttrStmt)
	require.True(t, ok)
	assert.Equal(t, tir.AttrDoubleBufferWrite, mark.Key)
	assert.Equal(t, f.buf, mark.Node)

	steady, ok := mark.Body.(*tir.For)
	require.True(t, ok)
	require.NotEqual(t, f.j, steady.Var, "duplicated binding of j must be renamed")
	assert.Equal(t, "j", steady.Var.Name)

	st = steady.Body.(*tir.Store)
	assert.Equal(t, index(tir.Mod{L: shift(f.i), R: tir.Int(2)}, steady.Var), st.Index)
	assert.Equal(t,
		tir.Expr(tir.Load{Buffer: f.src, Index: index(shift(f.i), steady.Var)}),
		st.Value)

	// consumer reads the half filled for the current iteration
	cons, ok := seq[1].(*tir.For)
	require.True(t, ok)
	require.Equal(t, f.k, cons.Var)

	st = cons.Body.(*tir.Store)
	assert.Equal(t, f.dst, st.Buffer)
	assert.Equal(t,
		tir.Expr(tir.Load{Buffer: f.buf, Index: index(tir.Mod{L: f.i, R: tir.Int(2)}, f.k)}),
		st.Value)
}

func TestInjectSplit(t *testing.T) {
	f := copyIn(8, 16)

	out, err := InjectDoubleBuffer(context.Background(), f.root, 2)
	require.NoError(t, err)

	alloc := out.(*tir.AttrStmt).Body.(*tir.Allocate)
	assert.Equal(t, []tir.Expr{tir.Int(2), tir.Int(16)}, alloc.Extents)

	body, ok := alloc.Body.(tir.SeqStmt)
	require.True(t, ok)
	require.Len(t, body, 4, "prologue, steady state, two tail guards")

	_, ok = body[0].(*tir.For) // prologue
	require.True(t, ok)

	// steady state: (8-1)/2 outer steps of 2 copies each
	outer, ok := body[1].(*tir.For)
	require.True(t, ok)
	assert.Equal(t, "i.outer", outer.Var.Name)
	assert.Equal(t, tir.Expr(tir.Int(0)), outer.Min)
	assert.Equal(t, tir.Expr(tir.Int(3)), outer.Extent)

	inner, ok := outer.Body.(tir.SeqStmt)
	require.True(t, ok)
	require.Len(t, inner, 4, "two copies of (prefetch, consume)")

	even := tir.Expr(tir.Mul{L: outer.Var, R: tir.Int(2)})
	odd := tir.Expr(tir.Add{L: tir.Mul{L: outer.Var, R: tir.Int(2)}, R: tir.Int(1)})

	assert.Equal(t, tir.Expr(tir.LT{L: shift(even), R: tir.Int(8)}), inner[0].(*tir.IfThenElse).Cond)
	assert.Equal(t, tir.Expr(tir.LT{L: shift(odd), R: tir.Int(8)}), inner[2].(*tir.IfThenElse).Cond)

	// tail covers indices 6 and 7, each individually guarded
	for n, want := range map[int]tir.Expr{3: tir.Int(6), 4: tir.Int(7)} {
		tail, ok := body[n].(*tir.IfThenElse)
		require.True(t, ok, "tail %v", n)
		assert.Equal(t, tir.Expr(tir.LT{L: want, R: tir.Int(8)}), tail.Cond)
		assert.False(t, hasDoubleBufferWrite(tail), "tail must carry no prefetch write marks")
	}

	// steady state still carries them
	assert.True(t, hasDoubleBufferWrite(outer))
}

func TestInjectSplitOne(t *testing.T) {
	f := copyIn(8, 16)

	out, err := InjectDoubleBuffer(context.Background(), f.root, 1)
	require.NoError(t, err)

	body := out.(*tir.AttrStmt).Body.(*tir.Allocate).Body.(tir.SeqStmt)
	require.Len(t, body, 3, "prologue, steady state, one tail guard")

	outer := body[1].(*tir.For)
	assert.Equal(t, tir.Expr(tir.Int(7)), outer.Extent)

	tail := body[2].(*tir.IfThenElse)
	assert.Equal(t, tir.Expr(tir.LT{L: tir.Int(7), R: tir.Int(8)}), tail.Cond)
}

func TestSingleIterationLoop(t *testing.T) {
	f := copyIn(1, 16)

	out, err := InjectDoubleBuffer(context.Background(), f.root, 0)
	require.NoError(t, err)

	body := out.(*tir.AttrStmt).Body.(*tir.Allocate).Body.(tir.SeqStmt)
	require.Len(t, body, 2)

	_, ok := body[0].(*tir.For) // prologue alone fills half 0
	require.True(t, ok)

	guard := body[1].(*tir.For).Body.(tir.SeqStmt)[0].(*tir.IfThenElse)
	assert.Equal(t, tir.Expr(tir.LT{L: shift(f.i), R: tir.Int(1)}), guard.Cond,
		"prefetch guard can never hold for a single iteration")
}

func TestStaleScopeIsStripped(t *testing.T) {
	f := copyIn(8, 16)

	other := &tir.Var{Name: "other"}
	inner := &tir.Store{Buffer: other, Value: tir.Int(0), Index: tir.Int(0)}

	s := tir.SeqStmt{
		f.root,
		// "other" is annotated but never allocated nor detected as
		// a candidate here: the mark is dropped, the body kept
		&tir.For{Var: &tir.Var{Name: "t"}, Min: tir.Int(0), Extent: tir.Int(2), Body: &tir.AttrStmt{
			Node:  other,
			Key:   tir.AttrDoubleBufferScope,
			Value: tir.Int(1),
			Body:  inner,
		}},
		&tir.Evaluate{Value: other},
	}

	out, err := InjectDoubleBuffer(context.Background(), s, 0)
	require.NoError(t, err)

	seq := out.(tir.SeqStmt)
	require.Len(t, seq, 3)

	loop := seq[1].(*tir.For)
	st, ok := loop.Body.(*tir.Store)
	require.True(t, ok, "scope mark must be stripped, got %T", loop.Body)
	assert.Equal(t, other, st.Buffer)
}

func TestBadSplitFactor(t *testing.T) {
	f := copyIn(8, 16)

	for _, split := range []int{3, 5, -2} {
		_, err := InjectDoubleBuffer(context.Background(), f.root, split)
		assert.Error(t, err, "split %v", split)
	}

	for _, split := range []int{0, 1, 2, 4} {
		_, err := InjectDoubleBuffer(context.Background(), f.root, split)
		assert.NoError(t, err, "split %v", split)
	}
}

func TestScopeOutsideLoopPanics(t *testing.T) {
	buf := &tir.Var{Name: "buf"}

	s := &tir.AttrStmt{
		Node:  buf,
		Key:   tir.AttrDoubleBufferScope,
		Value: tir.Int(1),
		Body:  &tir.Store{Buffer: buf, Value: tir.Int(0), Index: tir.Int(0)},
	}

	require.Panics(t, func() {
		_, _ = InjectDoubleBuffer(context.Background(), s, 0)
	})
}

func TestStoreOutsideScopePanics(t *testing.T) {
	f := copyIn(8, 16)

	loop := f.root.(*tir.For)
	alloc := loop.Body.(*tir.AttrStmt).Body.(*tir.Allocate)
	alloc.Body = append(alloc.Body.(tir.SeqStmt),
		&tir.Store{Buffer: f.buf, Value: tir.Int(0), Index: tir.Int(0)})

	require.Panics(t, func() {
		_, _ = InjectDoubleBuffer(context.Background(), f.root, 0)
	})
}

func TestSplitNonZeroBasePanics(t *testing.T) {
	f := copyIn(8, 16)

	f.root.(*tir.For).Min = tir.Int(1)

	require.Panics(t, func() {
		_, _ = InjectDoubleBuffer(context.Background(), f.root, 2)
	})
}

// index is phase*stride + orig as the rewrite lays it out.
func index(phase, orig tir.Expr) tir.Expr {
	return tir.Add{L: tir.Mul{L: phase, R: tir.Int(16)}, R: orig}
}

func shift(i tir.Expr) tir.Expr {
	return tir.Add{L: i, R: tir.Int(1)}
}

func hasDoubleBufferWrite(s tir.Stmt) bool {
	f := &findAttr{key: tir.AttrDoubleBufferWrite}
	f.Stmt(s)

	return f.found
}

type findAttr struct {
	key   string
	found bool
}

func (f *findAttr) Stmt(s tir.Stmt) {
	if a, ok := s.(*tir.AttrStmt); ok && a.Key == f.key {
		f.found = true
	}

	tir.VisitStmt(s, f)
}

func (f *findAttr) Expr(e tir.Expr) { tir.VisitExpr(e, f) }
