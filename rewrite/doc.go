// Package rewrite replaces string constants in instruction streams with the
// translations registered for the stream's unit.
//
// A Rewriter is handed to a patch installer as a transform callback. It
// never fails the caller: any error, including a panic, is logged and the
// input stream is returned unchanged.
package rewrite
