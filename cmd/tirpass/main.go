package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/CharlieCurry/incubator-tvm/compiler"
	"github.com/CharlieCurry/incubator-tvm/compiler/format"
	"github.com/CharlieCurry/incubator-tvm/compiler/tir"
)

func main() {
	demoCmd := &cli.Command{
		Name:        "demo",
		Description: "lower a sample double buffered loop, optional arg is the split factor",
		Action:      demoAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "tirpass",
		Description: "tirpass runs tensor ir lowering passes",
		Commands: []*cli.Command{
			demoCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func demoAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	split := 2

	if len(c.Args) != 0 {
		split, err = strconv.Atoi(c.Args[0])
		if err != nil {
			return errors.Wrap(err, "split factor %v", c.Args[0])
		}
	}

	s := sample()

	b, err := format.Format(ctx, nil, s)
	if err != nil {
		return errors.Wrap(err, "format input")
	}

	fmt.Printf("// input\n%s\n", b)

	s, err = compiler.Lower(ctx, s, compiler.Options{SplitLoop: split})
	if err != nil {
		return errors.Wrap(err, "lower")
	}

	b, err = format.Format(ctx, nil, s)
	if err != nil {
		return errors.Wrap(err, "format output")
	}

	fmt.Printf("// lowered\n%s", b)

	return nil
}

// sample fills buf one loop iteration ahead of the reads: 16 elements
// are copied from src and consumed into dst on every step of i.
func sample() tir.Stmt {
	src := &tir.Var{Name: "src"}
	dst := &tir.Var{Name: "dst"}
	buf := &tir.Var{Name: "buf"}

	i := &tir.Var{Name: "i"}
	j := &tir.Var{Name: "j"}
	k := &tir.Var{Name: "k"}

	produce := &tir.AttrStmt{
		Node:  buf,
		Key:   tir.AttrDoubleBufferScope,
		Value: tir.Int(1),
		Body: &tir.For{Var: j, Min: tir.Int(0), Extent: tir.Int(16), Body: &tir.Store{
			Buffer: buf,
			Value:  tir.Load{Buffer: src, Index: tir.Add{L: tir.Mul{L: i, R: tir.Int(16)}, R: j}},
			Index:  j,
		}},
	}

	consume := &tir.For{Var: k, Min: tir.Int(0), Extent: tir.Int(16), Body: &tir.Store{
		Buffer: dst,
		Value:  tir.Load{Buffer: buf, Index: k},
		Index:  tir.Add{L: tir.Mul{L: i, R: tir.Int(16)}, R: k},
	}}

	return &tir.For{
		Var: i, Min: tir.Int(0), Extent: tir.Int(8),
		Body: &tir.AttrStmt{
			Node:  buf,
			Key:   tir.AttrStorageScope,
			Value: tir.StringImm{Value: "shared"},
			Body: &tir.Allocate{
				Buffer:  buf,
				Elem:    tir.Float32,
				Extents: []tir.Expr{tir.Int(16)},
				Cond:    tir.Int(1),
				Body:    tir.SeqStmt{produce, consume},
			},
		},
	}
}
