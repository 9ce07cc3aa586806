package tir

type ssa struct {
	defined map[*Var]bool
	remap   map[*Var]*Var
}

// ConvertSSA restores binding uniqueness after tree duplication.
// Passes that copy subtrees (unrolling, substituted body copies) leave
// the same variable bound by several For or Allocate statements; each
// rebinding gets a fresh identity here, remapped through its own
// subtree, value uses and buffer handles alike.
func ConvertSSA(s Stmt) Stmt {
	v := &ssa{
		defined: map[*Var]bool{},
		remap:   map[*Var]*Var{},
	}

	return v.Stmt(s)
}

func (v *ssa) Stmt(s Stmt) Stmt {
	switch s := s.(type) {
	case *For:
		min := v.Expr(s.Min)
		ext := v.Expr(s.Extent)

		lv, restore := v.bind(s.Var)
		body := v.Stmt(s.Body)
		restore()

		return &For{Var: lv, Min: min, Extent: ext, Body: body}
	case *Allocate:
		ext := make([]Expr, len(s.Extents))
		for i, e := range s.Extents {
			ext[i] = v.Expr(e)
		}

		cond := s.Cond
		if cond != nil {
			cond = v.Expr(cond)
		}

		buf, restore := v.bind(s.Buffer)
		body := v.Stmt(s.Body)
		restore()

		return &Allocate{Buffer: buf, Elem: s.Elem, Extents: ext, Cond: cond, Body: body}
	case *Store:
		return &Store{
			Buffer: v.buffer(s.Buffer),
			Value:  v.Expr(s.Value),
			Index:  v.Expr(s.Index),
		}
	case *AttrStmt:
		node := s.Node
		if x, ok := node.(*Var); ok {
			node = v.buffer(x)
		}

		return &AttrStmt{Node: node, Key: s.Key, Value: v.Expr(s.Value), Body: v.Stmt(s.Body)}
	default:
		return MutateStmt(s, v)
	}
}

func (v *ssa) Expr(e Expr) Expr {
	switch e := e.(type) {
	case *Var:
		return v.buffer(e)
	case Load:
		return Load{Buffer: v.buffer(e.Buffer), Index: v.Expr(e.Index)}
	default:
		return MutateExpr(e, v)
	}
}

// bind declares x for the subtree being entered. The first binding
// keeps its identity, any further one gets a fresh variable that
// shadows x until restore is called.
func (v *ssa) bind(x *Var) (*Var, func()) {
	if !v.defined[x] {
		v.defined[x] = true

		return x, func() {}
	}

	fresh := &Var{Name: x.Name}
	old, had := v.remap[x]
	v.remap[x] = fresh

	return fresh, func() {
		if had {
			v.remap[x] = old
		} else {
			delete(v.remap, x)
		}
	}
}

func (v *ssa) buffer(x *Var) *Var {
	if r, ok := v.remap[x]; ok {
		return r
	}

	return x
}
