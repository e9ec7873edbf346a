package retext

import (
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"unsafe"
)

type funcInfo struct {
	*_func
	datap *moduledata
}

// _func mirrors runtime._func (runtime/runtime2.go), checked against Go 1.25.
type _func struct {
	entryOff uint32 // start pc, as offset from moduledata.text
	nameOff  int32  // function name, as index into moduledata.funcnametab

	args        int32
	deferreturn uint32

	pcsp      uint32
	pcfile    uint32
	pcln      uint32
	npcdata   uint32
	cuOffset  uint32
	startLine int32
	funcID    uint8
	flag      uint8
	_         [1]byte
	nfuncdata uint8
}

// moduledata mirrors the head of runtime.moduledata. The layout must match
// the runtime's exactly up to the last field used here. Checked against
// Go 1.25 (runtime/symtab.go).
type moduledata struct {
	pcHeader     *pcHeader
	funcnametab  []byte
	cutab        []uint32
	filetab      []byte
	pctab        []byte
	pclntable    []byte
	ftab         []functab
	findfunctab  uintptr
	minpc, maxpc uintptr

	text, etext           uintptr
	noptrdata, enoptrdata uintptr
	data, edata           uintptr
	bss, ebss             uintptr
	noptrbss, enoptrbss   uintptr
	covctrs, ecovctrs     uintptr
	end, gcdata, gcbss    uintptr
	types, etypes         uintptr
	rodata                uintptr
	gofunc                uintptr
}

type pcHeader struct {
	magic          uint32
	pad1, pad2     uint8
	minLC          uint8
	ptrSize        uint8
	nfunc          int
	nfiles         uint
	textStart      uintptr
	funcnameOffset uintptr
	cuOffset       uintptr
	filetabOffset  uintptr
	pctabOffset    uintptr
	pclnOffset     uintptr
}

type functab struct {
	entryoff uint32 // relative to moduledata.text
	funcoff  uint32
}

//go:linkname findfunc runtime.findfunc
func findfunc(pc uintptr) funcInfo

// symbol is a function compiled into the running binary.
type symbol struct {
	name  string
	entry uintptr
	size  uintptr
}

// code returns the symbol's machine code, INT3 padding included. The slice
// aliases the live text segment.
func (s *symbol) code() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(s.entry)), s.size)
}

// symbolTable indexes the functions of the module holding this package.
type symbolTable struct {
	byName map[string]*symbol
	sorted []*symbol // by name

	// Bounds of the read-only data holding string constants. Since Go 1.25
	// the linker places go:string.* inside [types, etypes), so type data
	// cannot be excluded by address.
	rodata, erodata uintptr
}

var (
	symbolsOnce sync.Once
	symbols     *symbolTable
)

// loadSymbols reads the function table once. It never changes while the
// process runs.
func loadSymbols() *symbolTable {
	symbolsOnce.Do(func() {
		symbols = readSymbols(reflect.ValueOf(readSymbols).Pointer())
	})
	return symbols
}

func readSymbols(pc uintptr) *symbolTable {
	st := &symbolTable{byName: map[string]*symbol{}}

	info := findfunc(pc)
	if info._func == nil || info.datap == nil {
		return st
	}
	datap := info.datap

	st.rodata, st.erodata = datap.rodata, datap.noptrdata
	if st.erodata <= st.rodata {
		st.erodata = st.rodata
	}

	// ftab is sorted by entry and ends with a sentinel at etext, so each
	// function runs up to the next entry.
	for i, ft := range datap.ftab {
		entry := datap.text + uintptr(ft.entryoff)
		end := datap.etext
		if i+1 < len(datap.ftab) {
			end = datap.text + uintptr(datap.ftab[i+1].entryoff)
		}
		if end <= entry {
			continue
		}

		fn := runtime.FuncForPC(entry)
		if fn == nil || fn.Entry() != entry {
			continue
		}
		sym := &symbol{name: fn.Name(), entry: entry, size: end - entry}
		if _, dup := st.byName[sym.name]; dup {
			continue
		}
		st.byName[sym.name] = sym
		st.sorted = append(st.sorted, sym)
	}

	slices.SortFunc(st.sorted, func(a, b *symbol) int {
		return strings.Compare(a.name, b.name)
	})
	return st
}

func (st *symbolTable) lookup(name string) (*symbol, bool) {
	sym, ok := st.byName[name]
	return sym, ok
}

// withPrefix returns the symbols whose names start with prefix, in name
// order.
func (st *symbolTable) withPrefix(prefix string) []*symbol {
	i, _ := slices.BinarySearchFunc(st.sorted, prefix, func(s *symbol, p string) int {
		return strings.Compare(s.name, p)
	})
	var out []*symbol
	for ; i < len(st.sorted) && strings.HasPrefix(st.sorted[i].name, prefix); i++ {
		out = append(out, st.sorted[i])
	}
	return out
}

// stringAt returns the n bytes at addr when they lie inside string data.
func (st *symbolTable) stringAt(addr uintptr, n int) (string, bool) {
	if n <= 0 || addr < st.rodata || addr+uintptr(n) > st.erodata || addr+uintptr(n) < addr {
		return "", false
	}
	return unsafe.String((*byte)(unsafe.Pointer(addr)), n), true
}

// funcName names the function containing pc.
func funcName(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return fn.Name()
}

// symbolPrefix converts a package path into the form the linker uses in
// symbol names.
func symbolPrefix(pkgPath string) string {
	const hex = "0123456789abcdef"

	lastSlash := strings.LastIndexByte(pkgPath, '/')
	var b strings.Builder
	for i := 0; i < len(pkgPath); i++ {
		c := pkgPath[i]
		if c <= ' ' || c == '%' || c == '"' || c >= 0x7f || (c == '.' && i > lastSlash) {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
