// Package il models the instruction stream of a compiled executable unit.
//
// The model is host neutral: a host binding decodes its native code into
// Instructions, hands them to the rewriter, and encodes the result back.
// Only the string-constant load (OpLoadString) has meaning to the engine;
// everything else is carried through untouched, including the Labels that
// make an instruction a branch target and the Blocks that open or close a
// protected region on it.
package il
