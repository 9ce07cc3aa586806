package tir

type subst struct {
	vmap map[*Var]Expr
}

// Substitute replaces variables by vmap in every value position of s.
// Binding positions and buffer handles are left alone. Variables are
// compared by pointer identity, so the replacement cannot capture a
// binding of an unrelated variable with the same name.
func Substitute(s Stmt, vmap map[*Var]Expr) Stmt {
	if len(vmap) == 0 {
		return s
	}

	v := &subst{vmap: vmap}

	return v.Stmt(s)
}

// SubstituteExpr is Substitute over a single expression.
func SubstituteExpr(e Expr, vmap map[*Var]Expr) Expr {
	if len(vmap) == 0 {
		return e
	}

	v := &subst{vmap: vmap}

	return v.Expr(e)
}

func (v *subst) Stmt(s Stmt) Stmt { return MutateStmt(s, v) }

func (v *subst) Expr(e Expr) Expr {
	if x, ok := e.(*Var); ok {
		if r, ok := v.vmap[x]; ok {
			return r
		}

		return x
	}

	return MutateExpr(e, v)
}
