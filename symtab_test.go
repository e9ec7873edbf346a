//go:build linux

package retext

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

const symtabConstant = "a string constant in read-only data"

func TestSymbolTable_StringAt(t *testing.T) {
	assert := assert.New(t)

	st := loadSymbols()
	addr := uintptr(unsafe.Pointer(unsafe.StringData(symtabConstant)))

	s, ok := st.stringAt(addr, len(symtabConstant))
	assert.True(ok)
	assert.Equal(symtabConstant, s)

	_, ok = st.stringAt(addr, 0)
	assert.False(ok)

	local := []byte("heap")
	_, ok = st.stringAt(uintptr(unsafe.Pointer(&local[0])), len(local))
	assert.False(ok)
}

func TestSymbolTable_WithPrefix(t *testing.T) {
	assert := assert.New(t)

	st := loadSymbols()
	syms := st.withPrefix("github.com/pboyd/retext.TestSymbolTable_")
	var names []string
	for _, s := range syms {
		names = append(names, s.name)
	}
	assert.Contains(names, "github.com/pboyd/retext.TestSymbolTable_StringAt")

	sym, ok := st.lookup("github.com/pboyd/retext.TestSymbolTable_StringAt")
	if assert.True(ok) {
		assert.NotZero(sym.size)
		assert.Len(sym.code(), int(sym.size))
	}
}
