package resolver

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/typesys"
)

func model() *typesys.Model {
	m := typesys.New()

	pawn := m.Type("Core", "RimWorld.Pawn").
		Method("Move", apis.ShapeLazySequence).
		Method("Tick", apis.ShapeOrdinary).
		Method("Think", apis.ShapeDeferred).
		Method("GetItems", apis.ShapeLazySequence).
		Method("Wander", apis.ShapeLazySequence)
	pawn.Nested("<Tick>c__AnonStorey0")
	pawn.Nested("<Move>d__3").Method("MoveNext", apis.ShapeOrdinary)
	pawn.Nested("ThinkStateMachine").Method("MoveNext", apis.ShapeOrdinary)
	pawn.Nested("Walker").
		Implements(apis.CapabilityIteratorStep).
		Method("MoveNext", apis.ShapeOrdinary)

	m.Type("Core", "RimWorld.Storyteller").
		Method("Notify", apis.ShapeOrdinary).
		Method("Incidents", apis.ShapeLazySequence)

	return m
}

func TestResolve(t *testing.T) {
	cases := map[string]struct {
		typeName, method string
		wantType         string
		wantMethod       string
		substituted      bool
		degraded         bool
	}{
		"ordinary": {
			typeName: "RimWorld.Storyteller", method: "Notify",
			wantType: "RimWorld.Storyteller", wantMethod: "Notify",
		},
		"compiler marker": {
			typeName: "RimWorld.Pawn", method: "Move",
			wantType: "RimWorld.Pawn+<Move>d__3", wantMethod: "MoveNext",
			substituted: true,
		},
		"readable convention": {
			typeName: "RimWorld.Pawn", method: "Think",
			wantType: "RimWorld.Pawn+ThinkStateMachine", wantMethod: "MoveNext",
			substituted: true,
		},
		"capability": {
			typeName: "RimWorld.Pawn", method: "GetItems",
			wantType: "RimWorld.Pawn+Walker", wantMethod: "MoveNext",
			substituted: true,
		},
		"already synthesized": {
			typeName: "RimWorld.Pawn/<Move>d__3", method: "Move",
			wantType: "RimWorld.Pawn+<Move>d__3", wantMethod: "MoveNext",
			substituted: true,
		},
		"degraded": {
			typeName: "RimWorld.Storyteller", method: "Incidents",
			wantType: "RimWorld.Storyteller", wantMethod: "Incidents",
			degraded: true,
		},
		"ordinary beside synthesized types": {
			typeName: "RimWorld.Pawn", method: "Tick",
			wantType: "RimWorld.Pawn", wantMethod: "Tick",
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			r := New(model())
			u, err := r.Resolve(c.typeName, c.method, "")
			require.NoError(t, err)

			assert.Equal(c.typeName, u.DeclaredType)
			assert.Equal(c.method, u.DeclaredMethod)
			assert.Equal(c.wantType, u.Type.QualifiedName())
			assert.Equal(c.wantMethod, u.MethodName)
			assert.Equal(c.substituted, u.Substituted)
			assert.Equal(c.degraded, u.Degraded)
			assert.Equal(apis.NewUnitID(c.wantType, c.wantMethod), u.ID())
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	cases := map[string]struct {
		typeName, method, module string
	}{
		"missing type":   {"RimWorld.Nope", "Notify", ""},
		"missing method": {"RimWorld.Storyteller", "Foo", ""},
		"wrong module":   {"RimWorld.Storyteller", "Notify", "Other"},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			r := New(model())
			u, err := r.Resolve(c.typeName, c.method, c.module)
			assert.Nil(t, u)
			assert.ErrorIs(t, err, apis.ErrNotFound)
			assert.Equal(t, apis.KindNotFound, apis.KindOf(err))
			assert.Zero(t, r.Len())
		})
	}
}

func TestResolve_CapabilityOnly(t *testing.T) {
	// No name conventions at all: the capability match alone must find the
	// synthesized type.
	m := typesys.New()
	m.Type("Core", "Shop").Method("GetItems", apis.ShapeLazySequence).
		Nested("Q9").Implements(apis.CapabilityAsyncStep)

	r := New(m, WithConventions())
	u, err := r.Resolve("Shop", "GetItems", "")
	require.NoError(t, err)
	assert.Equal(t, "Shop+Q9", u.Type.QualifiedName())
	assert.Nil(t, u.Method)
}

func TestResolve_ConventionsBeforeCapability(t *testing.T) {
	m := typesys.New()
	shop := m.Type("Core", "Shop").Method("GetItems", apis.ShapeLazySequence)
	shop.Nested("Other").Implements(apis.CapabilityIteratorStep)
	shop.Nested("GetItemsEnumerator").Implements(apis.CapabilityIteratorStep)

	u, err := New(m).Resolve("Shop", "GetItems", "")
	require.NoError(t, err)
	assert.Equal(t, "Shop+GetItemsEnumerator", u.Type.QualifiedName())
}

func TestResolve_Options(t *testing.T) {
	m := typesys.New()
	m.Type("main", "main.Shop").Method("Items", apis.ShapeLazySequence).
		Nested("Items.func1").Method("func", apis.ShapeOrdinary)

	r := New(m,
		WithConventions("%s.func", "%s-range"),
		WithCapabilities(),
		WithStepMethod("func"),
	)
	u, err := r.Resolve("main.Shop", "Items", "main")
	require.NoError(t, err)
	assert.Equal(t, "main.Shop+Items.func1", u.Type.QualifiedName())
	assert.Equal(t, "func", u.MethodName)
	assert.NotNil(t, u.Method)
	assert.Len(t, r.Strategies(), 2)
}

type stubStrategy struct{ name string }

func (s stubStrategy) TryFind(_ apis.TypeSystem, _ string, nested []apis.TypeDescriptor) (apis.TypeDescriptor, bool) {
	for _, n := range nested {
		if n.Name() == s.name {
			return n, true
		}
	}
	return nil, false
}

func (s stubStrategy) String() string { return "stub" }

func TestResolve_CustomStrategy(t *testing.T) {
	m := typesys.New()
	m.Type("Core", "Shop").Method("GetItems", apis.ShapeDeferred).Nested("Hidden")

	r := New(m, WithStrategies(stubStrategy{"Hidden"}, nil))
	require.Len(t, r.Strategies(), len(DefaultConventions)+2)

	u, err := r.Resolve("Shop", "GetItems", "")
	require.NoError(t, err)
	assert.Equal(t, "Shop+Hidden", u.Type.QualifiedName())
}

func TestResolve_Cache(t *testing.T) {
	assert := assert.New(t)

	m := model()
	r := New(m)

	first, err := r.Resolve("RimWorld.Pawn", "GetItems", "")
	require.NoError(t, err)
	second, err := r.Resolve("RimWorld.Pawn", "GetItems", "")
	require.NoError(t, err)
	assert.Same(first, second)

	cached, ok := r.Cached("RimWorld.Pawn", "GetItems", "")
	assert.True(ok)
	assert.Same(first, cached)

	// A new convention match appears. The cache keeps the old answer until
	// re-resolution is forced.
	pawn, _ := m.FindType("RimWorld.Pawn", "")
	pawn.(*typesys.Type).Nested("<GetItems>d__9")

	again, err := r.Resolve("RimWorld.Pawn", "GetItems", "")
	require.NoError(t, err)
	assert.Same(first, again)

	fresh, err := r.Reresolve("RimWorld.Pawn", "GetItems", "")
	require.NoError(t, err)
	assert.NotSame(first, fresh)
	assert.Equal("RimWorld.Pawn+<GetItems>d__9", fresh.Type.QualifiedName())
	assert.Equal("RimWorld.Pawn+Walker", first.Type.QualifiedName())

	r.Clear()
	assert.Zero(r.Len())
	_, ok = r.Cached("RimWorld.Pawn", "GetItems", "")
	assert.False(ok)
}

func TestResolve_Concurrent(t *testing.T) {
	r := New(model())

	targets := []struct{ typeName, method string }{
		{"RimWorld.Pawn", "Move"},
		{"RimWorld.Pawn", "Think"},
		{"RimWorld.Pawn", "GetItems"},
		{"RimWorld.Storyteller", "Notify"},
	}

	results := make([][]*apis.ResolvedUnit, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, target := range targets {
				u, err := r.Resolve(target.typeName, target.method, "")
				if assert.NoError(t, err) {
					results[i] = append(results[i], u)
				}
			}
		}()
	}
	wg.Wait()

	for i := range results {
		require.Len(t, results[i], len(targets))
		for j := range targets {
			assert.Same(t, results[0][j], results[i][j])
		}
	}
	assert.Equal(t, len(targets), r.Len())
}

func TestResolve_MissingStepMethod(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := typesys.New()
	m.Type("Core", "RimWorld.Pawn").
		Method("Move", apis.ShapeLazySequence).
		Nested("<Move>d__3")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	u, err := New(m, WithLogger(log)).Resolve("RimWorld.Pawn", "Move", "")
	require.NoError(err)
	assert.True(u.Substituted)
	assert.Nil(u.Method)
	assert.Contains(buf.String(), "Synthesized type has no step method.")
	assert.Contains(buf.String(), "RimWorld.Pawn+<Move>d__3")
}
