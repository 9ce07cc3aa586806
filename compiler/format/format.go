package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/CharlieCurry/incubator-tvm/compiler/tir"
)

// Format renders a statement tree as indented text.
func Format(ctx context.Context, b []byte, x tir.Stmt) ([]byte, error) {
	return formatStmt(ctx, b, x, 0)
}

func formatStmt(ctx context.Context, b []byte, x tir.Stmt, d int) (_ []byte, err error) {
	switch x := x.(type) {
	case *tir.AttrStmt:
		b = app(b, d, "// attr [%v] %v = ", attrNode(x.Node), x.Key)
		b = formatExpr(b, x.Value)
		b = append(b, '\n')

		return formatStmt(ctx, b, x.Body, d)
	case *tir.Allocate:
		b = app(b, d, "allocate %v[%c%vx%v", x.Buffer.Name, x.Elem.Kind, x.Elem.Bits, x.Elem.Lanes)

		for _, e := range x.Extents {
			b = append(b, " * "...)
			b = formatExpr(b, e)
		}

		b = append(b, "] {\n"...)

		b, err = formatStmt(ctx, b, x.Body, d+1)
		if err != nil {
			return nil, errors.Wrap(err, "allocate %v", x.Buffer.Name)
		}

		b = app(b, d, "}\n")

		return b, nil
	case *tir.For:
		b = app(b, d, "for (%v, ", x.Var.Name)
		b = formatExpr(b, x.Min)
		b = append(b, ", "...)
		b = formatExpr(b, x.Extent)
		b = append(b, ") {\n"...)

		b, err = formatStmt(ctx, b, x.Body, d+1)
		if err != nil {
			return nil, errors.Wrap(err, "for %v", x.Var.Name)
		}

		b = app(b, d, "}\n")

		return b, nil
	case *tir.Store:
		b = app(b, d, "%v[", x.Buffer.Name)
		b = formatExpr(b, x.Index)
		b = append(b, "] = "...)
		b = formatExpr(b, x.Value)
		b = append(b, '\n')

		return b, nil
	case *tir.IfThenElse:
		b = app(b, d, "if ")
		b = formatExpr(b, x.Cond)
		b = append(b, " {\n"...)

		b, err = formatStmt(ctx, b, x.Then, d+1)
		if err != nil {
			return nil, errors.Wrap(err, "then")
		}

		if x.Else != nil {
			b = app(b, d, "} else {\n")

			b, err = formatStmt(ctx, b, x.Else, d+1)
			if err != nil {
				return nil, errors.Wrap(err, "else")
			}
		}

		b = app(b, d, "}\n")

		return b, nil
	case tir.SeqStmt:
		for _, s := range x {
			b, err = formatStmt(ctx, b, s, d)
			if err != nil {
				return nil, err
			}
		}

		return b, nil
	case *tir.Evaluate:
		b = app(b, d, "")
		b = formatExpr(b, x.Value)
		b = append(b, '\n')

		return b, nil
	default:
		return nil, errors.New("unsupported stmt: %T", x)
	}
}

func formatExpr(b []byte, x tir.Expr) []byte {
	switch x := x.(type) {
	case *tir.Var:
		return append(b, x.Name...)
	case tir.IntImm:
		return hfmt.Appendf(b, "%d", x.Value)
	case tir.StringImm:
		return hfmt.Appendf(b, "%q", x.Value)
	case tir.Add:
		return formatBin(b, x.L, "+", x.R)
	case tir.Sub:
		return formatBin(b, x.L, "-", x.R)
	case tir.Mul:
		return formatBin(b, x.L, "*", x.R)
	case tir.Div:
		return formatBin(b, x.L, "/", x.R)
	case tir.Mod:
		return formatBin(b, x.L, "%", x.R)
	case tir.LT:
		return formatBin(b, x.L, "<", x.R)
	case tir.Load:
		b = append(b, x.Buffer.Name...)
		b = append(b, '[')
		b = formatExpr(b, x.Index)

		return append(b, ']')
	default:
		return hfmt.Appendf(b, "?%T?", x)
	}
}

func formatBin(b []byte, l tir.Expr, op string, r tir.Expr) []byte {
	b = append(b, '(')
	b = formatExpr(b, l)
	b = append(b, ' ')
	b = append(b, op...)
	b = append(b, ' ')
	b = formatExpr(b, r)

	return append(b, ')')
}

func attrNode(x any) string {
	switch x := x.(type) {
	case *tir.Var:
		return x.Name
	case nil:
		return "_"
	default:
		return "?"
	}
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
