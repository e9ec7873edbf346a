package typesys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/retext/apis"
)

func TestModel(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := New()
	st := m.Type("Core", "RimWorld.Storyteller").
		Method("Notify", apis.ShapeOrdinary).
		Method("GetItems", apis.ShapeLazySequence)
	st.Nested("<Move>d__3").
		Implements(apis.CapabilityIteratorStep).
		Method("MoveNext", apis.ShapeOrdinary)

	td, ok := m.FindType("RimWorld.Storyteller", "")
	require.True(ok)
	assert.Equal("RimWorld.Storyteller", td.QualifiedName())

	_, ok = m.FindType("RimWorld.Storyteller", "Other")
	assert.False(ok)

	td, ok = m.FindType("RimWorld.Storyteller", "Core")
	require.True(ok)

	md, ok := m.FindMethod(td, "GetItems")
	require.True(ok)
	assert.Equal(apis.ShapeLazySequence, md.Shape())

	_, ok = m.FindMethod(td, "Missing")
	assert.False(ok)

	nested := m.NestedTypes(td)
	require.Len(nested, 1)
	assert.Equal("<Move>d__3", nested[0].Name())
	assert.Equal("RimWorld.Storyteller+<Move>d__3", nested[0].QualifiedName())
	assert.True(m.ImplementsCapability(nested[0], apis.CapabilityIteratorStep))
	assert.False(m.ImplementsCapability(nested[0], apis.CapabilityAsyncStep))
	assert.False(m.ImplementsCapability(td, apis.CapabilityIteratorStep))

	byPath, ok := m.FindType("RimWorld.Storyteller/<Move>d__3", "")
	require.True(ok)
	assert.Same(nested[0], byPath)

	assert.Len(m.Types(), 2)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	doc := `
modules:
  - name: Core
    types:
      - name: RimWorld.Storyteller
        methods:
          - name: Notify
          - name: GetItems
            returns: lazy-sequence
        nested:
          - name: Walker
            capabilities: [step.iterator]
            methods: [{name: MoveNext}]
`
	m, err := Load(strings.NewReader(doc))
	require.NoError(err)

	td, ok := m.FindType("RimWorld.Storyteller", "Core")
	require.True(ok)
	md, ok := m.FindMethod(td, "GetItems")
	require.True(ok)
	assert.Equal(apis.ShapeLazySequence, md.Shape())

	walker, ok := m.FindType("RimWorld.Storyteller+Walker", "")
	require.True(ok)
	assert.True(m.ImplementsCapability(walker, apis.CapabilityIteratorStep))
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown field": "modules:\n  - name: Core\n    kinds: []\n",
		"bad shape":     "modules:\n  - name: Core\n    types:\n      - name: T\n        methods: [{name: M, returns: eventually}]\n",
		"unnamed type":  "modules:\n  - name: Core\n    types:\n      - methods: []\n",
		"unnamed nest":  "modules:\n  - name: Core\n    types:\n      - name: T\n        nested: [{}]\n",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	m, err := Load(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, m.Types())
}
