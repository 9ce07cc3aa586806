package tir

// Seq composes statements into one, flattening nested sequences and
// dropping nils. An empty sequence collapses to a no-op, a single
// statement is returned bare.
func Seq(list ...Stmt) Stmt {
	q := flatten(nil, list)

	switch len(q) {
	case 0:
		return Nop()
	case 1:
		return q[0]
	}

	return q
}

func flatten(q SeqStmt, list []Stmt) SeqStmt {
	for _, s := range list {
		switch s := s.(type) {
		case nil:
		case SeqStmt:
			q = flatten(q, s)
		default:
			q = append(q, s)
		}
	}

	return q
}

// MergeNest wraps body into nest, outermost first. Every element of
// nest must be a scoping statement whose own body is a placeholder.
func MergeNest(nest []Stmt, body Stmt) Stmt {
	for i := len(nest) - 1; i >= 0; i-- {
		switch s := nest[i].(type) {
		case *AttrStmt:
			body = &AttrStmt{Node: s.Node, Key: s.Key, Value: s.Value, Body: body}
		case *Allocate:
			body = &Allocate{Buffer: s.Buffer, Elem: s.Elem, Extents: s.Extents, Cond: s.Cond, Body: body}
		case *For:
			body = &For{Var: s.Var, Min: s.Min, Extent: s.Extent, Body: body}
		case *IfThenElse:
			body = &IfThenElse{Cond: s.Cond, Then: body}
		default:
			panic(s)
		}
	}

	return body
}
