package tir

type (
	// Visitor is a read-only pass over a tree.
	// Implementations handle the nodes they care about and call
	// VisitStmt/VisitExpr for the rest to descend into children.
	Visitor interface {
		Stmt(Stmt)
		Expr(Expr)
	}

	// Mutator rebuilds a tree bottom-up. Nodes are never edited in
	// place, every step is copy-and-replace, so subtrees can be shared.
	Mutator interface {
		Stmt(Stmt) Stmt
		Expr(Expr) Expr
	}
)

// VisitStmt visits the children of s through v.
func VisitStmt(s Stmt, v Visitor) {
	switch s := s.(type) {
	case *AttrStmt:
		v.Expr(s.Value)
		v.Stmt(s.Body)
	case *Allocate:
		for _, e := range s.Extents {
			v.Expr(e)
		}

		if s.Cond != nil {
			v.Expr(s.Cond)
		}

		v.Stmt(s.Body)
	case *For:
		v.Expr(s.Min)
		v.Expr(s.Extent)
		v.Stmt(s.Body)
	case *Store:
		v.Expr(s.Value)
		v.Expr(s.Index)
	case *IfThenElse:
		v.Expr(s.Cond)
		v.Stmt(s.Then)

		if s.Else != nil {
			v.Stmt(s.Else)
		}
	case SeqStmt:
		for _, x := range s {
			v.Stmt(x)
		}
	case *Evaluate:
		v.Expr(s.Value)
	default:
		panic(s)
	}
}

// VisitExpr visits the children of e through v.
// Buffer handles of Load are not value uses and are not visited.
func VisitExpr(e Expr, v Visitor) {
	switch e := e.(type) {
	case *Var, IntImm, StringImm:
	case Add:
		v.Expr(e.L)
		v.Expr(e.R)
	case Sub:
		v.Expr(e.L)
		v.Expr(e.R)
	case Mul:
		v.Expr(e.L)
		v.Expr(e.R)
	case Div:
		v.Expr(e.L)
		v.Expr(e.R)
	case Mod:
		v.Expr(e.L)
		v.Expr(e.R)
	case LT:
		v.Expr(e.L)
		v.Expr(e.R)
	case Load:
		v.Expr(e.Index)
	default:
		panic(e)
	}
}

// MutateStmt rebuilds s with its children passed through m.
func MutateStmt(s Stmt, m Mutator) Stmt {
	switch s := s.(type) {
	case *AttrStmt:
		return &AttrStmt{
			Node:  s.Node,
			Key:   s.Key,
			Value: m.Expr(s.Value),
			Body:  m.Stmt(s.Body),
		}
	case *Allocate:
		ext := make([]Expr, len(s.Extents))
		for i, e := range s.Extents {
			ext[i] = m.Expr(e)
		}

		cond := s.Cond
		if cond != nil {
			cond = m.Expr(cond)
		}

		return &Allocate{
			Buffer:  s.Buffer,
			Elem:    s.Elem,
			Extents: ext,
			Cond:    cond,
			Body:    m.Stmt(s.Body),
		}
	case *For:
		return &For{
			Var:    s.Var,
			Min:    m.Expr(s.Min),
			Extent: m.Expr(s.Extent),
			Body:   m.Stmt(s.Body),
		}
	case *Store:
		return &Store{
			Buffer: s.Buffer,
			Value:  m.Expr(s.Value),
			Index:  m.Expr(s.Index),
		}
	case *IfThenElse:
		els := s.Else
		if els != nil {
			els = m.Stmt(els)
		}

		return &IfThenElse{
			Cond: m.Expr(s.Cond),
			Then: m.Stmt(s.Then),
			Else: els,
		}
	case SeqStmt:
		q := make(SeqStmt, len(s))
		for i, x := range s {
			q[i] = m.Stmt(x)
		}

		return q
	case *Evaluate:
		return &Evaluate{Value: m.Expr(s.Value)}
	default:
		panic(s)
	}
}

// MutateExpr rebuilds e with its children passed through m.
// Buffer handles of Load are kept as is.
func MutateExpr(e Expr, m Mutator) Expr {
	switch e := e.(type) {
	case *Var, IntImm, StringImm:
		return e
	case Add:
		return Add{L: m.Expr(e.L), R: m.Expr(e.R)}
	case Sub:
		return Sub{L: m.Expr(e.L), R: m.Expr(e.R)}
	case Mul:
		return Mul{L: m.Expr(e.L), R: m.Expr(e.R)}
	case Div:
		return Div{L: m.Expr(e.L), R: m.Expr(e.R)}
	case Mod:
		return Mod{L: m.Expr(e.L), R: m.Expr(e.R)}
	case LT:
		return LT{L: m.Expr(e.L), R: m.Expr(e.R)}
	case Load:
		return Load{Buffer: e.Buffer, Index: m.Expr(e.Index)}
	default:
		panic(e)
	}
}
