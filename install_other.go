//go:build !linux || !amd64

package retext

import (
	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/il"
)

type stringArena struct{}

func (a *stringArena) Len() int { return 0 }

func (h *GoHost) Install(unit *apis.ResolvedUnit, _ func([]*il.Instruction) []*il.Instruction) error {
	if _, err := unitSymbol(unit); err != nil {
		return err
	}
	return apis.NewError(apis.KindRewriteFailure, string(unit.ID()), ErrUnsupported)
}

func (h *GoHost) Restore(*apis.ResolvedUnit) (bool, error) {
	return false, ErrUnsupported
}

func (h *GoHost) Body(*apis.ResolvedUnit) ([]*il.Instruction, error) {
	return nil, ErrUnsupported
}

func (h *GoHost) Disassemble(*apis.ResolvedUnit) (string, error) {
	return "", ErrUnsupported
}
