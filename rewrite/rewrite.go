package rewrite

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/il"
	"github.com/pboyd/retext/pattern"
	"github.com/pboyd/retext/registry"
)

// Mode selects how a changed string load is written back.
type Mode uint8

const (
	// ModeAuto rewrites in place when the stream carries labels or
	// protected regions and replaces instructions otherwise.
	ModeAuto Mode = iota
	// ModeReplace builds a new stream. Changed loads are new instruction
	// objects carrying the original labels, blocks and host data.
	ModeReplace
	// ModeInPlace changes the operand of the existing instruction objects
	// and returns the input slice.
	ModeInPlace
)

var modeNames = map[Mode]string{
	ModeAuto:    "auto",
	ModeReplace: "replace",
	ModeInPlace: "in-place",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", m)
}

// ParseMode parses the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeAuto, fmt.Errorf("unknown rewrite mode %q", s)
}

// Source provides the translations registered for a unit. *registry.Registry
// implements it.
type Source interface {
	Lookup(id apis.UnitID) (*registry.ExactTable, bool)
	LookupPatterns(id apis.UnitID) (*pattern.List, bool)
}

// Stats counts rewriter activity.
type Stats struct {
	// Rewrites is the number of streams that had translations registered.
	Rewrites uint64
	// Replacements is the number of string loads changed.
	Replacements uint64
	// Failures is the number of streams returned unchanged after an error.
	Failures uint64
}

// Rewriter rewrites instruction streams. It is safe for concurrent use.
type Rewriter struct {
	src  Source
	mode Mode
	log  *slog.Logger

	rewrites     atomic.Uint64
	replacements atomic.Uint64
	failures     atomic.Uint64

	// Loads changed in place, keyed by weak.Pointer[il.Instruction]. Later
	// rewrites of the same objects match the original text, not the
	// translation.
	written sync.Map
}

type written struct {
	from, to string
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithMode sets the write-back mode. The default is ModeAuto.
func WithMode(m Mode) Option {
	return func(r *Rewriter) {
		r.mode = m
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Rewriter reading translations from src.
func New(src Source, opts ...Option) *Rewriter {
	r := &Rewriter{
		src: src,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the configured mode.
func (r *Rewriter) Mode() Mode {
	return r.mode
}

// Stats returns a snapshot of the counters.
func (r *Rewriter) Stats() Stats {
	return Stats{
		Rewrites:     r.rewrites.Load(),
		Replacements: r.replacements.Load(),
		Failures:     r.failures.Load(),
	}
}

// Rewrite returns body with the unit's translations applied. On any error
// body is returned unchanged.
func (r *Rewriter) Rewrite(id apis.UnitID, body []*il.Instruction) []*il.Instruction {
	out, _, err := r.Transform(id, body)
	if err != nil {
		r.log.Error("Rewrite failed, leaving unit unchanged.", "unit", id, "error", err)
		return body
	}
	return out
}

// RewriteSeq collects a stream that can only be read once and rewrites it.
func (r *Rewriter) RewriteSeq(id apis.UnitID, stream iter.Seq[*il.Instruction]) []*il.Instruction {
	return r.Rewrite(id, slices.Collect(stream))
}

// Func returns Rewrite bound to id, in the shape patch installers take.
func (r *Rewriter) Func(id apis.UnitID) func([]*il.Instruction) []*il.Instruction {
	return func(body []*il.Instruction) []*il.Instruction {
		return r.Rewrite(id, body)
	}
}

type replacement struct {
	index int
	from  string
	text  string
}

var errNilInstruction = errors.New("nil instruction")

// Transform applies the unit's translations to body and reports how many
// string loads changed. Errors have kind RewriteFailure; body is untouched
// when an error is returned.
func (r *Rewriter) Transform(id apis.UnitID, body []*il.Instruction) (out []*il.Instruction, n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, n = body, 0
			err = apis.NewError(apis.KindRewriteFailure, string(id), fmt.Errorf("panic: %v", p))
		}
		if err != nil {
			r.failures.Add(1)
		}
	}()

	exact, hasExact := r.src.Lookup(id)
	patterns, hasPatterns := r.src.LookupPatterns(id)
	if (!hasExact || exact.Len() == 0) && (!hasPatterns || patterns.Len() == 0) {
		return body, 0, nil
	}

	r.rewrites.Add(1)

	changes, err := r.plan(body, exact, patterns)
	if err != nil {
		return body, 0, apis.NewError(apis.KindRewriteFailure, string(id), err)
	}
	if len(changes) == 0 {
		return body, 0, nil
	}

	mode := r.mode
	if mode == ModeAuto {
		mode = ModeReplace
		if il.HasControlFlow(body) {
			mode = ModeInPlace
		}
	}

	switch mode {
	case ModeInPlace:
		out = body
		for _, c := range changes {
			r.remember(body[c.index], c.from, c.text)
			body[c.index].Operand = c.text
		}
	default:
		out = slices.Clone(body)
		for _, c := range changes {
			out[c.index] = body[c.index].WithOperand(c.text)
		}
	}

	r.replacements.Add(uint64(len(changes)))
	r.log.Debug("Rewrote unit.", "unit", id, "count", len(changes), "mode", mode)
	return out, len(changes), nil
}

// plan finds the string loads to change without modifying body.
func (r *Rewriter) plan(body []*il.Instruction, exact *registry.ExactTable, patterns *pattern.List) ([]replacement, error) {
	var changes []replacement
	for i, in := range body {
		if in == nil {
			return nil, fmt.Errorf("instruction %d: %w", i, errNilInstruction)
		}
		s, ok := r.source(in)
		if !ok {
			continue
		}
		t, ok := exact.Get(s)
		if !ok {
			t, ok = patterns.Match(s)
		}
		if !ok {
			continue
		}
		if cur, _ := in.StringOperand(); t != cur {
			changes = append(changes, replacement{i, s, t})
		}
	}
	return changes, nil
}

// source returns the text a load held before this Rewriter changed it in
// place. A load changed since by someone else is taken as it is.
func (r *Rewriter) source(in *il.Instruction) (string, bool) {
	s, ok := in.StringOperand()
	if !ok {
		return "", false
	}
	if v, found := r.written.Load(weak.Make(in)); found {
		if w := v.(written); w.to == s {
			return w.from, true
		}
	}
	return s, true
}

func (r *Rewriter) remember(in *il.Instruction, from, to string) {
	key := weak.Make(in)
	if _, loaded := r.written.Swap(key, written{from: from, to: to}); loaded {
		return
	}
	runtime.AddCleanup(in, func(k weak.Pointer[il.Instruction]) {
		r.written.Delete(k)
	}, key)
}
