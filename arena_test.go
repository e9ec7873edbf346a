//go:build linux && amd64

package retext

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArena_Intern(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var a stringArena
	addr, err := a.Intern("Rauber")
	require.NoError(err)
	assert.NotZero(addr)
	assert.Less(uint64(addr), uint64(math.MaxUint32), "arena must be mapped in low memory")
	assert.Equal("Rauber", unsafe.String((*byte)(unsafe.Pointer(addr)), 6))

	again, err := a.Intern("Rauber")
	require.NoError(err)
	assert.Equal(addr, again)
	assert.Equal(1, a.Len())

	s, ok := a.Lookup(addr, 6)
	assert.True(ok)
	assert.Equal("Rauber", s)

	_, ok = a.Lookup(addr, 5)
	assert.False(ok)
}

func TestStringArena_Empty(t *testing.T) {
	var a stringArena
	addr, err := a.Intern("")
	require.NoError(t, err)
	assert.NotZero(t, addr)
}
