package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/CharlieCurry/incubator-tvm/compiler/pass"
	"github.com/CharlieCurry/incubator-tvm/compiler/tir"
)

type (
	// Options tune the lowering pipeline.
	Options struct {
		// SplitLoop is the explicit unroll factor for double
		// buffered loops: 0 keeps the loop, 1 or an even number
		// unrolls it by that much.
		SplitLoop int
	}
)

// Lower runs the lowering passes over a device statement tree.
func Lower(ctx context.Context, s tir.Stmt, opts Options) (_ tir.Stmt, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower", "split_loop", opts.SplitLoop)
	defer tr.Finish("err", &err)

	s, err = pass.InjectDoubleBuffer(ctx, s, opts.SplitLoop)
	if err != nil {
		return nil, errors.Wrap(err, "inject double buffer")
	}

	return s, nil
}
