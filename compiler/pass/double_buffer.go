package pass

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/CharlieCurry/incubator-tvm/compiler/tir"
)

type (
	// detector collects buffers marked for double buffering.
	// A buffer referenced as a plain value anywhere in the tree is
	// dropped from the set: its identity is observed, not just its
	// contents, so it cannot be split into alternating halves.
	detector struct {
		touched map[*tir.Var]bool
	}

	// stripDoubleBufferWrite removes the prefetch write markers from
	// a subtree, leaving the marked statements in place.
	stripDoubleBufferWrite struct{}

	injector struct {
		tr tlog.Span

		splitLoop int

		// set while rewriting the body of a double buffer scope,
		// carried on the visitor value so sibling subtrees never
		// see it.
		inDoubleBufferScope bool

		loopNest []*tir.For

		loopAllocs map[*tir.For][]tir.Stmt
		loopPre    map[*tir.For][]tir.Stmt

		dbuffer map[*tir.Var]*storageEntry
	}

	storageEntry struct {
		// element count of one buffer copy
		stride tir.Expr

		// innermost loop enclosing the double buffer scope
		loop *tir.For

		switchWrite *tir.Var
		switchRead  tir.Expr

		scope string
	}
)

// InjectDoubleBuffer rewrites every buffer marked with a double buffer
// scope so that it is allocated twice and filled one iteration ahead of
// its reads. splitLoop of 0 keeps the enclosing loop as is, guarding
// the prefetch per iteration; 1 or an even factor unrolls the loop
// explicitly, with a guarded tail for the remainder.
//
// A tree without double buffer marks is returned unchanged. Malformed
// input past the factor check panics, aborting the compilation.
func InjectDoubleBuffer(ctx context.Context, s tir.Stmt, splitLoop int) (tir.Stmt, error) {
	if splitLoop < 0 || splitLoop > 1 && splitLoop%2 != 0 {
		return nil, errors.New("split loop factor must be 0, 1 or even, got %v", splitLoop)
	}

	d := &detector{touched: map[*tir.Var]bool{}}
	d.Stmt(s)

	if len(d.touched) == 0 {
		return s, nil
	}

	v := &injector{
		tr:        tlog.SpanFromContext(ctx),
		splitLoop: splitLoop,

		loopAllocs: map[*tir.For][]tir.Stmt{},
		loopPre:    map[*tir.For][]tir.Stmt{},

		dbuffer: map[*tir.Var]*storageEntry{},
	}

	for buf := range d.touched {
		v.dbuffer[buf] = &storageEntry{}
	}

	return tir.ConvertSSA(v.Stmt(s)), nil
}

func (d *detector) Stmt(s tir.Stmt) {
	if a, ok := s.(*tir.AttrStmt); ok && a.Key == tir.AttrDoubleBufferScope {
		d.touched[a.Node.(*tir.Var)] = true
	}

	tir.VisitStmt(s, d)
}

func (d *detector) Expr(e tir.Expr) {
	if x, ok := e.(*tir.Var); ok {
		delete(d.touched, x)

		return
	}

	tir.VisitExpr(e, d)
}

func (v stripDoubleBufferWrite) Stmt(s tir.Stmt) tir.Stmt {
	if a, ok := s.(*tir.AttrStmt); ok && a.Key == tir.AttrDoubleBufferWrite {
		return v.Stmt(a.Body)
	}

	return tir.MutateStmt(s, v)
}

func (v stripDoubleBufferWrite) Expr(e tir.Expr) tir.Expr { return e }

func (v *injector) Stmt(s tir.Stmt) tir.Stmt {
	switch s := s.(type) {
	case *tir.AttrStmt:
		return v.attrStmt(s)
	case *tir.Allocate:
		return v.allocate(s)
	case *tir.For:
		return v.forLoop(s)
	case *tir.Store:
		return v.store(s)
	default:
		return tir.MutateStmt(s, v)
	}
}

func (v *injector) Expr(e tir.Expr) tir.Expr {
	switch e := e.(type) {
	case tir.Load:
		return v.load(e)
	case *tir.Var:
		if v.dbuffer[e] != nil {
			panic(errors.New("double buffer %v referenced as a plain value", e.Name))
		}

		return e
	default:
		return tir.MutateExpr(e, v)
	}
}

func (v *injector) attrStmt(s *tir.AttrStmt) tir.Stmt {
	switch s.Key {
	case tir.AttrStorageScope:
		buf, ok := s.Node.(*tir.Var)
		if !ok {
			break
		}

		e := v.dbuffer[buf]
		if e == nil {
			break
		}

		// remembered here, re-emitted on the hoisted allocation
		e.scope = s.Value.(tir.StringImm).Value

		return v.Stmt(s.Body)
	case tir.AttrDoubleBufferScope:
		return v.makeProducer(s)
	}

	return tir.MutateStmt(s, v)
}

func (v *injector) allocate(s *tir.Allocate) tir.Stmt {
	e := v.dbuffer[s.Buffer]
	if e == nil {
		return tir.MutateStmt(s, v)
	}

	// resolved before the body is rewritten: the allocation
	// dominates every access
	e.stride = tir.Product(s.Extents, s.Elem.Lanes)

	a := tir.MutateStmt(s, v).(*tir.Allocate)

	if e.loop == nil {
		panic(errors.New("allocation of double buffer %v encloses no double buffer scope", s.Buffer.Name))
	}

	ext := append([]tir.Expr{tir.Int(2)}, a.Extents...)

	v.loopAllocs[e.loop] = append(v.loopAllocs[e.loop],
		&tir.AttrStmt{
			Node:  s.Buffer,
			Key:   tir.AttrStorageScope,
			Value: tir.StringImm{Value: e.scope},
			Body:  tir.Nop(),
		},
		&tir.Allocate{
			Buffer:  s.Buffer,
			Elem:    s.Elem,
			Extents: ext,
			Cond:    a.Cond,
			Body:    tir.Nop(),
		})

	// the allocation moves out of the loop, only the body stays
	return a.Body
}

// makeProducer rewrites the producer statements of one double buffer.
//
// Inside loop i the scope body is rewritten to write through a fresh
// phase variable and read through i%2. One copy with everything
// substituted to zero primes half 0 before the loop; the in-loop copy
// is shifted one iteration ahead and guarded so the last iteration
// does not prefetch past the end.
func (v *injector) makeProducer(s *tir.AttrStmt) tir.Stmt {
	buf := s.Node.(*tir.Var)

	if len(v.loopNest) == 0 {
		panic(errors.New("double buffer scope of %v is outside of any loop", buf.Name))
	}

	e := v.dbuffer[buf]
	if e == nil {
		v.tr.Printw("skip double buffer scope", "buffer", buf.Name, "from", loc.Callers(1, 3))

		return v.Stmt(s.Body)
	}

	e.loop = v.loopNest[len(v.loopNest)-1]

	i := e.loop.Var
	shift := tir.AddExpr(i, tir.Int(1))

	e.switchWrite = &tir.Var{Name: i.Name + ".db"}
	e.switchRead = tir.ModExpr(i, tir.Int(2))

	in := *v
	in.inDoubleBufferScope = true
	body := in.Stmt(s.Body)

	vmap := map[*tir.Var]tir.Expr{
		i:             tir.Int(0),
		e.switchWrite: tir.Int(0),
	}

	v.loopPre[e.loop] = append(v.loopPre[e.loop], tir.Substitute(body, vmap))

	vmap[i] = shift
	vmap[e.switchWrite] = tir.ModExpr(shift, tir.Int(2))

	body = tir.Substitute(body, vmap)
	body = &tir.AttrStmt{Node: buf, Key: tir.AttrDoubleBufferWrite, Value: tir.Int(1), Body: body}

	return &tir.IfThenElse{
		Cond: tir.LT{L: shift, R: e.loop.Extent},
		Then: body,
	}
}

func (v *injector) forLoop(s *tir.For) tir.Stmt {
	v.loopNest = append(v.loopNest, s)

	stmt := tir.MutateStmt(s, v)

	if pre, ok := v.loopPre[s]; ok {
		if v.splitLoop != 0 {
			stmt = v.splitUnroll(stmt.(*tir.For))
		}

		stmt = tir.Seq(append(dup(pre), stmt)...)
	}

	if nest, ok := v.loopAllocs[s]; ok {
		stmt = tir.MergeNest(nest, stmt)
	}

	v.loopNest = v.loopNest[:len(v.loopNest)-1]

	return stmt
}

// splitUnroll expands loop by the split factor. Prefetch covers
// iterations [0, N-1): the steady state runs (N-1)/k outer steps of k
// copies each, the remaining indices up to N-1 run individually
// guarded, without the prefetch write marks.
func (v *injector) splitUnroll(loop *tir.For) tir.Stmt {
	if !tir.IsZero(loop.Min) {
		panic(errors.New("split loop %v must start at zero", loop.Var.Name))
	}

	factor := tir.Int(int64(v.splitLoop))
	newExt := tir.SubExpr(loop.Extent, tir.Int(1))
	outerExt := tir.DivExpr(newExt, factor)
	tailBase := tir.MulExpr(outerExt, factor)

	outer := &tir.Var{Name: loop.Var.Name + ".outer"}

	v.tr.V("split_loop").Printw("split loop",
		"loop", loop.Var.Name, "factor", v.splitLoop,
		"outer_extent", outerExt, "tail_base", tailBase)

	vmap := map[*tir.Var]tir.Expr{}
	seq := make([]tir.Stmt, 0, v.splitLoop)

	for j := 0; j < v.splitLoop; j++ {
		vmap[loop.Var] = tir.AddExpr(tir.MulExpr(outer, factor), tir.Int(int64(j)))
		seq = append(seq, tir.Substitute(loop.Body, vmap))
	}

	steady := &tir.For{
		Var:    outer,
		Min:    loop.Min,
		Extent: outerExt,
		Body:   tir.Seq(seq...),
	}

	tailBody := stripDoubleBufferWrite{}.Stmt(loop.Body)
	tail := make([]tir.Stmt, 0, 1+v.splitLoop)
	tail = append(tail, steady)

	for j := 0; j < v.splitLoop; j++ {
		idx := tir.AddExpr(tailBase, tir.Int(int64(j)))
		vmap[loop.Var] = idx

		tail = append(tail, &tir.IfThenElse{
			Cond: tir.LT{L: idx, R: loop.Extent},
			Then: tir.Substitute(tailBody, vmap),
		})
	}

	return tir.Seq(tail...)
}

func (v *injector) store(s *tir.Store) tir.Stmt {
	st := tir.MutateStmt(s, v).(*tir.Store)

	e := v.dbuffer[s.Buffer]
	if e == nil {
		return st
	}

	if !v.inDoubleBufferScope {
		panic(errors.New("store to double buffer %v outside of its double buffer scope", s.Buffer.Name))
	}
	if e.stride == nil {
		panic(errors.New("store to double buffer %v before its allocation", s.Buffer.Name))
	}

	return &tir.Store{
		Buffer: st.Buffer,
		Value:  st.Value,
		Index:  tir.AddExpr(tir.MulExpr(e.switchWrite, e.stride), st.Index),
	}
}

func (v *injector) load(x tir.Load) tir.Expr {
	ld := tir.MutateExpr(x, v).(tir.Load)

	e := v.dbuffer[x.Buffer]
	if e == nil {
		return ld
	}

	if e.stride == nil {
		panic(errors.New("load of double buffer %v before its allocation", x.Buffer.Name))
	}
	if e.switchRead == nil {
		panic(errors.New("load of double buffer %v before its double buffer scope", x.Buffer.Name))
	}

	return tir.Load{
		Buffer: ld.Buffer,
		Index:  tir.AddExpr(tir.MulExpr(e.switchRead, e.stride), ld.Index),
	}
}

func dup[T any](s []T) []T {
	return append([]T{}, s...)
}
