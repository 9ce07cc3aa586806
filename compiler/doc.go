/*

Process of lowering

Tensor Program (tir) ->
	inject double buffer ->
	convert ssa ->
Lowered Program (tir) ->
	codegen ->
Device Code

The passes are pure tree transforms: each takes a statement tree and
returns a new one, nodes are never edited in place.

*/
package compiler
