//go:build linux && amd64

package retext

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
	"golang.org/x/sys/unix"
)

const (
	arenaStartSize = 64 << 10

	// Low memory, within reach of a RIP-relative displacement from the
	// text segment of a non-PIE binary.
	arenaProt  = unix.PROT_READ | unix.PROT_WRITE
	arenaFlags = unix.MAP_32BIT
)

// stringArena holds replacement string data where patched code can reach
// it with a 32-bit displacement. Strings are interned and never freed, so
// reinstalling a unit points at the same bytes.
type stringArena struct {
	*malloc.Arena
	mu       sync.Mutex
	initOnce sync.Once
	initErr  error

	interned map[string][]byte
	byAddr   map[uintptr]string
}

func (a *stringArena) init() error {
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(malloc.MmapProt(arenaProt), malloc.MmapFlags(arenaFlags))
		a.Arena = malloc.NewArena(uint64(arenaStartSize), malloc.Backend(be))
		if a.Arena == nil {
			a.initErr = errors.New("unable to initialize string arena")
			return
		}
		a.interned = map[string][]byte{}
		a.byAddr = map[uintptr]string{}
	})
	return a.initErr
}

// Intern copies s into the arena and returns its address.
func (a *stringArena) Intern(s string) (uintptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.init(); err != nil {
		return 0, fmt.Errorf("error initializing arena: %w", err)
	}

	if buf, ok := a.interned[s]; ok {
		return uintptr(unsafe.Pointer(unsafe.SliceData(buf))), nil
	}

	buf, err := malloc.MallocSlice[byte](a.Arena, max(len(s), 1))
	if err != nil {
		return 0, err
	}
	copy(buf, s)
	a.interned[s] = buf

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	a.byAddr[addr] = s
	return addr, nil
}

// Lookup returns the interned string starting at addr when it is n bytes
// long.
func (a *stringArena) Lookup(addr uintptr, n int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.byAddr[addr]
	if !ok || len(s) != n {
		return "", false
	}
	return s, true
}

// Len returns the number of interned strings.
func (a *stringArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.interned)
}
