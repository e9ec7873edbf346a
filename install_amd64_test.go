//go:build linux

package retext

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/descriptor"
	"github.com/pboyd/retext/il"
	"github.com/pboyd/retext/resolver"
)

func resolveShop(t *testing.T, h *GoHost, method string) *apis.ResolvedUnit {
	t.Helper()
	u, err := resolver.New(h, h.ResolverOptions()...).Resolve("retext.shop", method, "")
	require.NoError(t, err)
	return u
}

func restoreAfter(t *testing.T, h *GoHost, u *apis.ResolvedUnit) {
	t.Cleanup(func() {
		_, err := h.Restore(u)
		assert.NoError(t, err)
	})
}

func replaceStrings(m map[string]string) func([]*il.Instruction) []*il.Instruction {
	return func(body []*il.Instruction) []*il.Instruction {
		for i, in := range body {
			s, ok := in.StringOperand()
			if !ok {
				continue
			}
			if v, ok := m[s]; ok {
				body[i] = in.WithOperand(v)
			}
		}
		return body
	}
}

func TestGoHost_Body(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newShopHost(t)
	u := resolveShop(t, h, "Greeting")

	body, err := h.Body(u)
	require.NoError(err)
	assert.Contains(il.Strings(body), "Welcome to the shop")
	assert.Equal(il.OpReturn, body[len(body)-1].Op)

	listing, err := h.Disassemble(u)
	require.NoError(err)
	assert.NotEmpty(listing)
}

func TestGoHost_Install(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newShopHost(t)
	s := &shop{}
	u := resolveShop(t, h, "Greeting")
	restoreAfter(t, h, u)

	require.NoError(h.Install(u, replaceStrings(map[string]string{"Welcome to the shop": "欢迎光临"})))
	assert.Equal("欢迎光临", s.Greeting())

	body, err := h.Body(u)
	require.NoError(err)
	assert.Contains(il.Strings(body), "欢迎光临")

	// Installing again starts from the original code.
	require.NoError(h.Install(u, replaceStrings(map[string]string{"Welcome to the shop": "Bienvenue"})))
	assert.Equal("Bienvenue", s.Greeting())
	require.NoError(h.Install(u, replaceStrings(map[string]string{"欢迎光临": "unused"})))
	assert.Equal("Welcome to the shop", s.Greeting())
	assert.Equal(2, h.arena.Len())

	restored, err := h.Restore(u)
	require.NoError(err)
	assert.True(restored)
	assert.Equal("Welcome to the shop", s.Greeting())

	restored, err = h.Restore(u)
	require.NoError(err)
	assert.False(restored)
}

func TestGoHost_Install_Iterator(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newShopHost(t)
	u := resolveShop(t, h, "Items")
	require.True(u.Substituted)
	restoreAfter(t, h, u)

	require.NoError(h.Install(u, replaceStrings(map[string]string{"Sword": "剑", "Shield": "盾"})))
	assert.Equal([]string{"剑", "盾"}, slices.Collect((&shop{}).Items()))
}

func TestGoHost_Install_NoChange(t *testing.T) {
	assert := assert.New(t)

	h := newShopHost(t)
	u := resolveShop(t, h, "Greeting")

	assert.NoError(h.Install(u, func(body []*il.Instruction) []*il.Instruction { return body }))
	restored, err := h.Restore(u)
	assert.NoError(err)
	assert.False(restored)
}

func TestGoHost_Install_NotAGoUnit(t *testing.T) {
	err := NewGoHost().Install(&apis.ResolvedUnit{Type: &goType{qualified: "x"}, MethodName: "M"}, nil)
	assert.ErrorIs(t, err, apis.ErrNotFound)
}

func TestEngine_GoHost(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	doc := `
operations:
  - targetType: retext.shop
    targetMethod: Greeting
    replacements:
      - find: Welcome to the shop
        replace: Willkommen
  - targetType: retext.shop
    targetMethod: Items
    replacements:
      - find: Sword
        replace: Schwert
`
	file, err := descriptor.Parse(strings.NewReader(doc), descriptor.FormatYAML)
	require.NoError(err)
	require.NoError(file.Err())

	h := newShopHost(t)
	e := New(h, h)
	rep := e.Apply(context.Background(), file.Patches)
	require.Equal(2, rep.Installed, rep.Err())
	t.Cleanup(func() {
		for _, m := range []string{"Greeting", "Items"} {
			u, ok := e.Resolver().Cached("retext.shop", m, "")
			if ok {
				_, err := h.Restore(u)
				assert.NoError(err)
			}
		}
	})

	s := &shop{}
	assert.Equal("Willkommen", s.Greeting())
	assert.Equal([]string{"Schwert", "Shield"}, slices.Collect(s.Items()))
}
