//go:build linux

package retext

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/il"
)

// Install rewrites the string constants of a unit's machine code. The
// instruction stream passed to transform is decoded from the unit's
// original code, so installing a unit twice replaces the first rewrite
// instead of stacking on it. Only the operands of string loads are
// written back: inserted, removed or reordered instructions are ignored.
//
// Install does nothing when transform changes no strings.
func (h *GoHost) Install(unit *apis.ResolvedUnit, transform func([]*il.Instruction) []*il.Instruction) error {
	sym, err := unitSymbol(unit)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	live := sym.code()
	orig, ok := h.pristine[sym.entry]
	if !ok {
		orig = slices.Clone(live)
	}

	body, err := h.decoder(sym.entry).decode(orig)
	if err != nil {
		return apis.NewError(apis.KindRewriteFailure, string(unit.ID()), err)
	}

	code := slices.Clone(orig)
	_, err = encodeStrings(code, sym.entry, transform(body), h.arena.Intern)
	if err != nil {
		return apis.NewError(apis.KindRewriteFailure, string(unit.ID()), err)
	}
	if bytes.Equal(code, live) {
		return nil
	}

	if err := writeCode(live, code); err != nil {
		return apis.NewError(apis.KindRewriteFailure, string(unit.ID()), fmt.Errorf("write code: %w", err))
	}
	h.pristine[sym.entry] = orig
	return nil
}

// Restore puts back the unit's original code. It reports whether the unit
// had been patched.
func (h *GoHost) Restore(unit *apis.ResolvedUnit) (bool, error) {
	sym, err := unitSymbol(unit)
	if err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	orig, ok := h.pristine[sym.entry]
	if !ok {
		return false, nil
	}
	if err := writeCode(sym.code(), orig); err != nil {
		return false, err
	}
	delete(h.pristine, sym.entry)
	return true, nil
}

// Body decodes the unit's code as it is now, patches included.
func (h *GoHost) Body(unit *apis.ResolvedUnit) ([]*il.Instruction, error) {
	sym, err := unitSymbol(unit)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.decoder(sym.entry).decode(sym.code())
}

// Disassemble returns a listing of the unit's machine code as it is now.
func (h *GoHost) Disassemble(unit *apis.ResolvedUnit) (string, error) {
	sym, err := unitSymbol(unit)
	if err != nil {
		return "", err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return disassemble(sym.code(), sym.entry)
}

func (h *GoHost) decoder(base uintptr) *x86Decoder {
	st := loadSymbols()
	return &x86Decoder{
		base: base,
		str: func(addr uintptr, n int) (string, bool) {
			if s, ok := st.stringAt(addr, n); ok {
				return s, true
			}
			return h.arena.Lookup(addr, n)
		},
		name: funcName,
	}
}
