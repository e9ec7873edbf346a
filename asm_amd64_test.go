package retext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/retext/il"
)

const testBase = uintptr(0x401000)

// testStrings serves "hello" 0x10 bytes past the end of a 7 byte LEA at
// testBase.
func testStrings(addr uintptr, n int) (string, bool) {
	if addr == testBase+0x17 && n == 5 {
		return "hello", true
	}
	return "", false
}

func testDecoder() *x86Decoder {
	return &x86Decoder{
		base: testBase,
		str:  testStrings,
		name: func(pc uintptr) string {
			if pc == testBase+5 {
				return "fmt.Println"
			}
			return ""
		},
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	leaRAX   = []byte{0x48, 0x8d, 0x05, 0x10, 0x00, 0x00, 0x00} // LEAQ 0x10(IP), AX
	movEBX5  = []byte{0xbb, 0x05, 0x00, 0x00, 0x00}             // MOVL $5, BX
	movECX5  = []byte{0xb9, 0x05, 0x00, 0x00, 0x00}             // MOVL $5, CX
	movEBX4  = []byte{0xbb, 0x04, 0x00, 0x00, 0x00}             // MOVL $4, BX
	movMem5  = []byte{0x48, 0xc7, 0x44, 0x24, 0x08, 0x05, 0x00, 0x00, 0x00}
	nop      = []byte{0x90}
	ret      = []byte{0xc3}
	padding  = []byte{0xcc, 0xcc, 0xcc}
	testEAX  = []byte{0x85, 0xc0}
	callNext = []byte{0xe8, 0x00, 0x00, 0x00, 0x00}
)

func TestDecode_StringLoads(t *testing.T) {
	cases := map[string]struct {
		code      []byte
		loadIndex int // -1 for no string load
	}{
		"register pair": {
			code:      cat(leaRAX, movEBX5, ret),
			loadIndex: 0,
		},
		"memory store": {
			code:      cat(leaRAX, movMem5, ret),
			loadIndex: 0,
		},
		"with padding": {
			code:      cat(leaRAX, movEBX5, ret, padding),
			loadIndex: 0,
		},
		"wrong register": {
			code:      cat(leaRAX, movECX5, ret),
			loadIndex: -1,
		},
		"not string data": {
			code:      cat(leaRAX, movEBX4, ret),
			loadIndex: -1,
		},
		"length too far away": {
			code:      cat(leaRAX, nop, nop, nop, movEBX5, ret),
			loadIndex: -1,
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			body, err := testDecoder().decode(c.code)
			require.NoError(err)
			require.NotEmpty(body)
			assert.Equal(il.OpReturn, body[len(body)-1].Op)

			if c.loadIndex < 0 {
				assert.Empty(il.Strings(body))
				assert.Equal(il.OpNative, body[0].Op)
				return
			}
			assert.Equal([]string{"hello"}, il.Strings(body))
			assert.Equal(il.OpLoadString, body[c.loadIndex].Op)
			assert.Equal(0, body[c.loadIndex].Offset)
		})
	}
}

func TestDecode_LengthBeforeAddress(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// The LEA starts at offset 5, so the string is 0x10 bytes past 12.
	d := testDecoder()
	d.str = func(addr uintptr, n int) (string, bool) {
		if addr == testBase+12+0x10 && n == 5 {
			return "hello", true
		}
		return "", false
	}

	body, err := d.decode(cat(movEBX5, leaRAX, ret))
	require.NoError(err)
	require.Len(body, 3)
	assert.Equal(il.OpNative, body[0].Op)
	assert.Equal(il.OpLoadString, body[1].Op)
	assert.Equal("hello", body[1].Operand)
}

func TestDecode_Branches(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	code := cat(
		testEAX,            // 0
		[]byte{0x75, 0x03}, // 2: JNE 7
		[]byte{0xeb, 0x01}, // 4: JMP 7
		nop,                // 6
		ret,                // 7
		padding,
	)

	body, err := testDecoder().decode(code)
	require.NoError(err)
	require.Len(body, 5)

	assert.Equal(il.OpBranchTrue, body[1].Op)
	assert.Equal(il.Label{ID: 1}, body[1].Operand)
	assert.Equal(il.OpBranch, body[2].Op)
	assert.Equal(il.Label{ID: 1}, body[2].Operand)
	assert.Equal([]il.Label{{ID: 1}}, body[4].Labels)
	assert.True(il.HasControlFlow(body))

	for i, off := range []int{0, 2, 4, 6, 7} {
		assert.Equal(off, body[i].Offset)
	}
}

func TestDecode_Call(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	body, err := testDecoder().decode(cat(callNext, ret))
	require.NoError(err)
	require.Len(body, 2)
	assert.Equal(il.OpCall, body[0].Op)
	assert.Equal("fmt.Println", body[0].Operand)
	assert.Empty(body[1].Labels)
}

func TestDecode_Invalid(t *testing.T) {
	cases := map[string]struct {
		code   []byte
		errMsg string
	}{
		"truncated lea": {
			code:   []byte{0x48, 0x8d},
			errMsg: "decode error at offset 0",
		},
		"truncated after ret": {
			code:   cat(ret, []byte{0x48, 0x8d}),
			errMsg: "decode error at offset 1",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := testDecoder().decode(tc.code)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestEncodeStrings(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	code := cat(leaRAX, movEBX5, ret)
	body, err := testDecoder().decode(code)
	require.NoError(err)

	var interned []string
	intern := func(s string) (uintptr, error) {
		interned = append(interned, s)
		return testBase + 0x1000, nil
	}

	// Unchanged strings are left alone.
	out := append([]byte(nil), code...)
	n, err := encodeStrings(out, testBase, body, intern)
	require.NoError(err)
	assert.Equal(0, n)
	assert.Equal(code, out)
	assert.Empty(interned)

	body[0] = body[0].WithOperand("hi!")
	n, err = encodeStrings(out, testBase, body, intern)
	require.NoError(err)
	assert.Equal(1, n)
	assert.Equal([]string{"hi!"}, interned)

	want := cat(
		[]byte{0x48, 0x8d, 0x05, 0xf9, 0x0f, 0x00, 0x00},
		[]byte{0xbb, 0x03, 0x00, 0x00, 0x00},
		ret,
	)
	assert.Equal(want, out)

	// The patched code decodes to the new string.
	d := testDecoder()
	d.str = func(addr uintptr, n int) (string, bool) {
		if addr == testBase+0x1000 && n == 3 {
			return "hi!", true
		}
		return "", false
	}
	patched, err := d.decode(out)
	require.NoError(err)
	assert.Equal([]string{"hi!"}, il.Strings(patched))
}

func TestEncodeStrings_Errors(t *testing.T) {
	code := cat(leaRAX, movEBX5, ret)

	cases := map[string]struct {
		body   func([]*il.Instruction) []*il.Instruction
		intern func(string) (uintptr, error)
		errMsg string
	}{
		"out of reach": {
			body: func(b []*il.Instruction) []*il.Instruction {
				b[0] = b[0].WithOperand("far")
				return b
			},
			intern: func(string) (uintptr, error) { return testBase + 1<<40, nil },
			errMsg: "out of reach",
		},
		"no machine code": {
			body: func(b []*il.Instruction) []*il.Instruction {
				return append(b, il.LoadString("new"))
			},
			intern: func(string) (uintptr, error) { return testBase, nil },
			errMsg: "no machine code",
		},
		"not a string": {
			body: func(b []*il.Instruction) []*il.Instruction {
				b[0] = b[0].WithOperand(42)
				return b
			},
			intern: func(string) (uintptr, error) { return testBase, nil },
			errMsg: "not a string",
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			body, err := testDecoder().decode(code)
			require.NoError(t, err)

			out := append([]byte(nil), code...)
			_, err = encodeStrings(out, testBase, c.body(body), c.intern)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.errMsg)
		})
	}
}

func TestDisassemble(t *testing.T) {
	assert := assert.New(t)

	out, err := disassemble(cat(leaRAX, movEBX5, ret, padding), testBase)
	assert.NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(lines, 3)
	assert.True(strings.HasPrefix(lines[0], "0x00401000\t488d0510000000"))
	assert.True(strings.HasPrefix(lines[2], "0x0040100c\tc3"))
}
