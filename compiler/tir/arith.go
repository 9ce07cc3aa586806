package tir

// Folding constructors. Constant operands are folded right away, so
// bound arithmetic over static shapes comes out as plain immediates.
// Nothing is simplified beyond that.

func AddExpr(a, b Expr) Expr {
	x, xok := a.(IntImm)
	y, yok := b.(IntImm)

	switch {
	case xok && yok:
		return Int(x.Value + y.Value)
	case xok && x.Value == 0:
		return b
	case yok && y.Value == 0:
		return a
	}

	return Add{L: a, R: b}
}

func SubExpr(a, b Expr) Expr {
	x, xok := a.(IntImm)
	y, yok := b.(IntImm)

	switch {
	case xok && yok:
		return Int(x.Value - y.Value)
	case yok && y.Value == 0:
		return a
	}

	return Sub{L: a, R: b}
}

func MulExpr(a, b Expr) Expr {
	x, xok := a.(IntImm)
	y, yok := b.(IntImm)

	switch {
	case xok && yok:
		return Int(x.Value * y.Value)
	case xok && x.Value == 1:
		return b
	case yok && y.Value == 1:
		return a
	}

	return Mul{L: a, R: b}
}

func DivExpr(a, b Expr) Expr {
	x, xok := a.(IntImm)
	y, yok := b.(IntImm)

	switch {
	case xok && yok:
		return Int(x.Value / y.Value)
	case yok && y.Value == 1:
		return a
	}

	return Div{L: a, R: b}
}

func ModExpr(a, b Expr) Expr {
	x, xok := a.(IntImm)
	y, yok := b.(IntImm)

	if xok && yok {
		return Int(x.Value % y.Value)
	}

	return Mod{L: a, R: b}
}

// Product folds extents times lanes into the element count of one
// buffer copy.
func Product(extents []Expr, lanes int) Expr {
	if len(extents) == 0 {
		return Int(int64(lanes))
	}

	x := extents[0]
	for _, e := range extents[1:] {
		x = MulExpr(x, e)
	}

	return MulExpr(x, Int(int64(lanes)))
}
