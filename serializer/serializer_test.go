package serializer

import (
	stderrors "errors"
	"iter"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/featurize/config"
	"github.com/wippyai/featurize/discovery"
	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/label"
)

type item struct {
	Name string  `vw:"name"`
	W    float64 `vw:"w"`
}

type scenario struct {
	Ctx   float64 `vw:"ctx"`
	Items []item  `vw:"_multi"`
}

type actionsOnly struct {
	Items []item `vw:"_multi"`
}

type geo struct {
	City string  `vw:"city"`
	Lat  float64 `vw:"lat"`
}

type profile struct {
	Age    int            `vw:"age"`
	Name   string         `vw:"name,ns=u"`
	Geo    geo            `vw:"geo"`
	Home   *geo           `vw:"home"`
	Tags   []string       `vw:"tags"`
	Emb    []float32      `vw:"emb"`
	Bag    map[string]int `vw:"bag"`
	Active bool           `vw:"active"`
	Score  *float64       `vw:"score"`
	Rank   uint8          `vw:"rank,order=-1"`
}

func options(codegen bool) Options {
	return Options{
		Discoverer: discovery.New(discovery.ModeTagged),
		Codegen:    codegen,
	}
}

func discover(t *testing.T, v any) *feature.Set {
	t.Helper()
	set, err := discovery.New(discovery.ModeTagged).Discover(reflect.TypeOf(v))
	if err != nil {
		t.Fatalf("Discover(%T): %v", v, err)
	}
	return set
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// wantErr fails unless err matches phase and kind.
func wantErr(t *testing.T, err error, phase errors.Phase, kind errors.Kind) *errors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s error, got nil", phase, kind)
	}
	if !stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind}) {
		t.Fatalf("error = %v, want %s/%s", err, phase, kind)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	return e
}

func scenarioValue() scenario {
	return scenario{Ctx: 3, Items: []item{{Name: "a", W: 1}, {Name: "b", W: 2}}}
}

func feat(t *testing.T, ex example.Example, path ...string) example.Feature {
	t.Helper()
	f, ok := ex.Lookup(path...)
	if !ok {
		t.Fatalf("feature %v missing from %v", path, ex.Names())
	}
	return f
}

func TestTryCompile(t *testing.T) {
	t.Run("no collection feature", func(t *testing.T) {
		m, err := TryCompile(reflect.TypeOf(profile{}), discover(t, profile{}), options(true))
		mustOK(t, err)
		if m != nil {
			t.Errorf("TryCompile = %v, want nil", m)
		}
	})

	t.Run("nil set", func(t *testing.T) {
		if _, err := TryCompile(reflect.TypeOf(scenario{}), nil, options(true)); err == nil {
			t.Error("TryCompile(nil) should fail")
		}
	})

	t.Run("shared and action split", func(t *testing.T) {
		m, err := TryCompile(reflect.TypeOf(scenario{}), discover(t, scenario{}), options(true))
		mustOK(t, err)
		if m == nil || m.Shared() == nil {
			t.Fatal("expected a multi serializer with shared features")
		}
		shared := m.Shared().Set()
		if shared.Len() != 1 || shared.At(0).Name != "ctx" {
			t.Errorf("shared features = %d, first %q; want [ctx]", shared.Len(), shared.At(0).Name)
		}
		if n := m.Action().Set().Len(); n != 2 {
			t.Errorf("action features = %d, want 2", n)
		}
		if m.Element() != reflect.TypeOf(item{}) {
			t.Errorf("Element = %v, want item", m.Element())
		}
		if m.Type() != reflect.TypeOf(scenario{}) {
			t.Errorf("Type = %v, want scenario", m.Type())
		}
		if m.Accessor() == nil {
			t.Error("Accessor is nil")
		}
	})

	t.Run("collection only", func(t *testing.T) {
		m, err := TryCompile(reflect.TypeOf(actionsOnly{}), discover(t, actionsOnly{}), options(true))
		mustOK(t, err)
		if m == nil {
			t.Fatal("expected a multi serializer")
		}
		if m.Shared() != nil {
			t.Error("collection-only types have no shared serializer")
		}
	})

	t.Run("element discoverer required", func(t *testing.T) {
		_, err := TryCompile(reflect.TypeOf(actionsOnly{}), discover(t, actionsOnly{}), Options{Codegen: true})
		if !errors.IsSchema(err) {
			t.Errorf("error = %v, want a schema error", err)
		}
	})
}

func TestTryCompile_NotEnumerable(t *testing.T) {
	type plainObject struct {
		Ctx   float64 `vw:"ctx"`
		Multi item    `vw:"_multi"`
	}
	type numbers struct {
		Multi []int `vw:"_multi"`
	}
	type mapped struct {
		Multi map[string]item `vw:"_multi"`
	}
	type text struct {
		Multi string `vw:"_multi"`
	}
	type badSeq struct {
		Multi func(int) bool `vw:"_multi"`
	}

	tests := []struct {
		name  string
		value any
	}{
		{"plain object", plainObject{}},
		{"slice of numbers", numbers{}},
		{"map", mapped{}},
		{"string", text{}},
		{"func without sequence shape", badSeq{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := TryCompile(reflect.TypeOf(tt.value), discover(t, tt.value), options(true))
			wantErr(t, err, errors.PhaseCompile, errors.KindNotEnumerable)
			if m != nil {
				t.Error("no serializer should be returned")
			}
			if !errors.IsSchema(err) {
				t.Error("not-enumerable is a schema error")
			}
			if !strings.Contains(err.Error(), "must be array or sequence") {
				t.Errorf("error = %q", err)
			}
		})
	}

	t.Run("through the factory", func(t *testing.T) {
		f := newFactory(t, config.Default())
		s, err := For[plainObject](f)
		if s != nil || !errors.IsSchema(err) {
			t.Errorf("For = %v, %v; want a schema error", s, err)
		}
	})
}

func TestMulti_Scenario(t *testing.T) {
	for _, codegen := range []bool{true, false} {
		t.Run(Options{Codegen: codegen}.mode(), func(t *testing.T) {
			m, err := TryCompile(reflect.TypeOf(scenario{}), discover(t, scenario{}), options(codegen))
			mustOK(t, err)

			for call := range 3 {
				ctx := example.NewContext()
				mustOK(t, m.Serialize(ctx, reflect.ValueOf(scenarioValue()), nil))

				exs := ctx.Examples()
				if len(exs) != 3 {
					t.Fatalf("call %d: %d examples, want 3", call, len(exs))
				}

				if !exs[0].Shared || !label.IsShared(exs[0].Label) {
					t.Errorf("call %d: first example is not shared", call)
				}
				if got := exs[0].Names(); !slices.Equal(got, []string{"ctx"}) {
					t.Errorf("shared names = %v, want [ctx]", got)
				}
				if got := feat(t, exs[0], "ctx").Value.Number; got != 3 {
					t.Errorf("ctx = %v, want 3", got)
				}

				for i, want := range scenarioValue().Items {
					ex := exs[i+1]
					if ex.Shared || ex.Label != nil {
						t.Errorf("action %d: Shared = %v, Label = %v", i, ex.Shared, ex.Label)
					}
					if got := ex.Names(); !slices.Equal(got, []string{"name", "w"}) {
						t.Errorf("action %d names = %v", i, got)
					}
					if got := feat(t, ex, "name").Value.Str; got != want.Name {
						t.Errorf("action %d name = %q, want %q", i, got, want.Name)
					}
					if got := feat(t, ex, "w").Value.Number; got != want.W {
						t.Errorf("action %d w = %v, want %v", i, got, want.W)
					}
				}
			}
		})
	}
}

func TestMulti_EmptyCollection(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"empty with shared", scenario{Ctx: 1, Items: []item{}}, 1},
		{"nil with shared", scenario{Ctx: 1}, 1},
		{"empty without shared", actionsOnly{Items: []item{}}, 0},
		{"nil without shared", actionsOnly{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := TryCompile(reflect.TypeOf(tt.value), discover(t, tt.value), options(true))
			mustOK(t, err)

			ctx := example.NewContext()
			mustOK(t, m.Serialize(ctx, reflect.ValueOf(tt.value), nil))
			if n := len(ctx.Examples()); n != tt.want {
				t.Errorf("%d examples, want %d", n, tt.want)
			}
		})
	}
}

func TestMulti_AccessorShortCircuits(t *testing.T) {
	outer := reflect.TypeOf(scenario{})
	var predicateCalls, extractorCalls int

	set, err := feature.NewSet(outer, []*feature.Descriptor{
		{Name: "ctx", Type: reflect.TypeOf(0.0), Index: []int{0}},
		{
			Name: feature.MultiProperty,
			Type: reflect.TypeOf([]item{}),
			Extract: func(reflect.Value) (reflect.Value, error) {
				extractorCalls++
				t.Error("extractor invoked although a predicate failed")
				return reflect.Value{}, stderrors.New("must not be called")
			},
			Valid: []feature.Predicate{
				func(reflect.Value) bool { predicateCalls++; return false },
				func(reflect.Value) bool { t.Error("predicates should short-circuit"); return true },
			},
		},
	})
	mustOK(t, err)

	m, err := TryCompile(outer, set, options(true))
	mustOK(t, err)

	seq, err := m.Accessor()(reflect.ValueOf(scenarioValue()))
	mustOK(t, err)
	if seq != nil {
		t.Error("accessor should yield no sequence")
	}

	ctx := example.NewContext()
	mustOK(t, m.Serialize(ctx, reflect.ValueOf(scenarioValue()), nil))
	if n := len(ctx.Examples()); n != 1 {
		t.Errorf("%d examples, want only the shared one", n)
	}
	if predicateCalls != 2 || extractorCalls != 0 {
		t.Errorf("predicate calls = %d, extractor calls = %d; want 2, 0", predicateCalls, extractorCalls)
	}
}

func TestMulti_Collections(t *testing.T) {
	t.Run("sequence", func(t *testing.T) {
		type seqOuter struct {
			Items iter.Seq[item] `vw:"_multi"`
		}
		v := seqOuter{Items: func(yield func(item) bool) {
			for _, it := range scenarioValue().Items {
				if !yield(it) {
					return
				}
			}
		}}
		m, err := TryCompile(reflect.TypeOf(v), discover(t, v), options(true))
		mustOK(t, err)
		ctx := example.NewContext()
		mustOK(t, m.Serialize(ctx, reflect.ValueOf(v), nil))
		exs := ctx.Examples()
		if len(exs) != 2 {
			t.Fatalf("%d examples, want 2", len(exs))
		}
		if got := feat(t, exs[1], "name").Value.Str; got != "b" {
			t.Errorf("name = %q, want b", got)
		}
	})

	t.Run("array and pointer to slice", func(t *testing.T) {
		type arrayOuter struct {
			Items [2]item `vw:"_multi"`
		}
		type ptrSliceOuter struct {
			Items *[]item `vw:"_multi"`
		}
		items := scenarioValue().Items

		for _, v := range []any{arrayOuter{Items: [2]item{items[0], items[1]}}, ptrSliceOuter{Items: &items}} {
			m, err := TryCompile(reflect.TypeOf(v), discover(t, v), options(true))
			mustOK(t, err)
			ctx := example.NewContext()
			mustOK(t, m.Serialize(ctx, reflect.ValueOf(v), nil))
			if n := len(ctx.Examples()); n != 2 {
				t.Errorf("%T: %d examples, want 2", v, n)
			}
		}
	})

	t.Run("nil elements keep indices", func(t *testing.T) {
		type ptrOuter struct {
			Items []*item `vw:"_multi"`
		}
		v := ptrOuter{Items: []*item{{Name: "a"}, nil, {Name: "c"}}}
		m, err := TryCompile(reflect.TypeOf(v), discover(t, v), options(true))
		mustOK(t, err)
		if m.Element() != reflect.TypeOf(&item{}) {
			t.Errorf("Element = %v, want *item", m.Element())
		}

		ctx := example.NewContext()
		mustOK(t, m.Serialize(ctx, reflect.ValueOf(v), nil))
		exs := ctx.Examples()
		if len(exs) != 3 {
			t.Fatalf("%d examples, want 3", len(exs))
		}
		if len(exs[1].Features) != 0 {
			t.Errorf("nil element wrote %v", exs[1].Names())
		}
		if got := feat(t, exs[2], "name").Value.Str; got != "c" {
			t.Errorf("name = %q, want c", got)
		}
	})
}

func TestMulti_Labels(t *testing.T) {
	m, err := TryCompile(reflect.TypeOf(scenario{}), discover(t, scenario{}), options(true))
	mustOK(t, err)
	v := reflect.ValueOf(scenarioValue())
	lbl := label.ContextualBandit{Action: 2, Cost: 0.5, Probability: 0.25}

	t.Run("indexed action", func(t *testing.T) {
		ctx := example.NewContext()
		mustOK(t, m.SerializeAt(ctx, v, lbl, 1))
		exs := ctx.Examples()
		if len(exs) != 3 {
			t.Fatalf("%d examples, want 3", len(exs))
		}
		if exs[1].Label != nil {
			t.Errorf("unlabeled action has label %v", exs[1].Label)
		}
		if exs[2].Label != lbl {
			t.Errorf("Label = %v, want %v", exs[2].Label, lbl)
		}
	})

	t.Run("label without index", func(t *testing.T) {
		ctx := example.NewContext()
		wantErr(t, m.Serialize(ctx, v, lbl), errors.PhaseSerialize, errors.KindInvalidInput)
		if ctx.Len() != 0 {
			t.Errorf("Len = %d after a failed call", ctx.Len())
		}
	})

	t.Run("shared marker", func(t *testing.T) {
		mustOK(t, m.Serialize(example.NewContext(), v, label.Shared))
	})

	tests := []struct {
		name  string
		index int
	}{
		{"negative index", -1},
		{"index at length", 2},
		{"index past length", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := example.NewContext()
			wantErr(t, m.SerializeAt(ctx, v, lbl, tt.index), errors.PhaseSerialize, errors.KindOutOfBounds)
			if ctx.Len() != 0 {
				t.Errorf("Len = %d after a failed call", ctx.Len())
			}
		})
	}

	t.Run("nil instance", func(t *testing.T) {
		err := m.Serialize(example.NewContext(), reflect.ValueOf((*scenario)(nil)), nil)
		wantErr(t, err, errors.PhaseSerialize, errors.KindNilPointer)
	})
}

func TestCompileSingle(t *testing.T) {
	t.Run("nil set", func(t *testing.T) {
		s, err := CompileSingle(nil, options(true))
		if err == nil || s != nil {
			t.Errorf("CompileSingle(nil) = %v, %v", s, err)
		}
	})

	t.Run("empty set", func(t *testing.T) {
		set, err := feature.NewSet(reflect.TypeOf(struct{}{}), nil)
		mustOK(t, err)
		s, err := CompileSingle(set, options(true))
		mustOK(t, err)
		ctx := example.NewContext()
		mustOK(t, s.Serialize(ctx, reflect.ValueOf(struct{}{}), nil))
		exs := ctx.Examples()
		if len(exs) != 1 || len(exs[0].Features) != 0 {
			t.Errorf("examples = %+v, want one empty example", exs)
		}
	})

	t.Run("type without wire form", func(t *testing.T) {
		type withChan struct {
			Ok float64  `vw:"ok"`
			C  chan int `vw:"c"`
		}
		s, err := CompileSingle(discover(t, withChan{}), options(true))
		if s != nil || !errors.IsSchema(err) {
			t.Fatalf("CompileSingle = %v, %v; want a schema error", s, err)
		}
		var e *errors.Error
		if !stderrors.As(err, &e) || !slices.Equal(e.Path, []string{"c"}) {
			t.Errorf("error path = %v, want [c]", e)
		}
	})

	t.Run("group nesting bound", func(t *testing.T) {
		type node struct {
			V    float64 `vw:"v"`
			Next *node   `vw:"next"`
		}
		opts := options(true)
		opts.MaxDepth = 3
		_, err := CompileSingle(discover(t, node{}), opts)
		e := wantErr(t, err, errors.PhaseCompile, errors.KindUnsupported)
		if e.WireType != "node" {
			t.Errorf("WireType = %q, want node", e.WireType)
		}
	})

	t.Run("groups need a discoverer", func(t *testing.T) {
		if _, err := CompileSingle(discover(t, profile{}), Options{Codegen: true}); err == nil {
			t.Error("CompileSingle should fail")
		}
	})

	t.Run("label", func(t *testing.T) {
		s, err := CompileSingle(discover(t, item{}), options(true))
		mustOK(t, err)
		ctx := example.NewContext()
		mustOK(t, s.Serialize(ctx, reflect.ValueOf(item{Name: "x"}), label.Simple{Label: 1}))
		if got := ctx.Examples()[0].Label; got != (label.Simple{Label: 1}) {
			t.Errorf("Label = %v, want 1", got)
		}
	})

	t.Run("value of another type", func(t *testing.T) {
		s, err := CompileSingle(discover(t, item{}), options(true))
		mustOK(t, err)
		ctx := example.NewContext()
		if s.Serialize(ctx, reflect.ValueOf(geo{}), nil) == nil {
			t.Error("Serialize should fail")
		}
		if ctx.Len() != 0 {
			t.Errorf("Len = %d after a failed call", ctx.Len())
		}
	})

	t.Run("nil and invalid values", func(t *testing.T) {
		s, err := CompileSingle(discover(t, item{}), options(true))
		mustOK(t, err)
		if s.Serialize(example.NewContext(), reflect.ValueOf((*item)(nil)), nil) == nil {
			t.Error("nil pointer should fail")
		}
		if s.Serialize(example.NewContext(), reflect.Value{}, nil) == nil {
			t.Error("invalid value should fail")
		}
	})
}

func TestCompileSingle_RoundTrip(t *testing.T) {
	score := 0.75
	v := profile{
		Age:    41,
		Name:   "ada",
		Geo:    geo{City: "London", Lat: 51.5},
		Tags:   []string{"x", "y"},
		Emb:    []float32{0.5, 1.5},
		Bag:    map[string]int{"k": 3},
		Active: true,
		Score:  &score,
		Rank:   7,
	}

	tests := []struct {
		path []string
		want example.Value
	}{
		{[]string{"rank"}, example.Number(7)},
		{[]string{"age"}, example.Number(41)},
		{[]string{"name"}, example.String("ada")},
		{[]string{"geo", "city"}, example.String("London")},
		{[]string{"geo", "lat"}, example.Number(51.5)},
		{[]string{"tags"}, example.Tokens([]string{"x", "y"})},
		{[]string{"emb"}, example.Vector([]float64{0.5, 1.5})},
		{[]string{"bag"}, example.Dict(map[string]float64{"k": 3})},
		{[]string{"active"}, example.Bool(true)},
		{[]string{"score"}, example.Number(0.75)},
	}

	for _, codegen := range []bool{true, false} {
		t.Run(Options{Codegen: codegen}.mode(), func(t *testing.T) {
			s, err := CompileSingle(discover(t, profile{}), options(codegen))
			mustOK(t, err)
			ctx := example.NewContext()
			mustOK(t, s.Serialize(ctx, reflect.ValueOf(&v), nil))
			ex := ctx.Examples()[0]

			// nil pointers are skipped; order follows the descriptor set
			want := []string{"rank", "age", "name", "geo", "tags", "emb", "bag", "active", "score"}
			if got := ex.Names(); !slices.Equal(got, want) {
				t.Errorf("names = %v, want %v", got, want)
			}

			for _, tt := range tests {
				if got := feat(t, ex, tt.path...).Value; !reflect.DeepEqual(got, tt.want) {
					t.Errorf("%v = %+v, want %+v", tt.path, got, tt.want)
				}
			}

			if ns := feat(t, ex, "name").Namespace; ns != "u" {
				t.Errorf("name namespace = %q, want u", ns)
			}
		})
	}
}

func TestCompileSingle_CodegenMatchesReflection(t *testing.T) {
	score := 2.0
	values := []profile{
		{},
		{Age: -3, Name: "n", Rank: 255, Active: false},
		{Geo: geo{City: "Oslo"}, Home: &geo{Lat: -1}, Score: &score, Tags: []string{}},
	}

	fast, err := CompileSingle(discover(t, profile{}), options(true))
	mustOK(t, err)
	slow, err := CompileSingle(discover(t, profile{}), options(false))
	mustOK(t, err)

	for i, v := range values {
		a, b := example.NewContext(), example.NewContext()
		mustOK(t, fast.Serialize(a, reflect.ValueOf(v), nil))
		mustOK(t, slow.Serialize(b, reflect.ValueOf(&v).Elem(), nil))
		if err := example.Diff(a.Examples(), b.Examples()); err != nil {
			t.Errorf("value %d: %v", i, err)
		}
	}
}

func TestCompileSingle_ExtractionErrors(t *testing.T) {
	cause := stderrors.New("lookup failed")
	typ := reflect.TypeOf(item{})
	set, err := feature.NewSet(typ, []*feature.Descriptor{
		{Name: "name", Type: reflect.TypeOf(""), Index: []int{0}},
		{
			Name: "computed",
			Type: reflect.TypeOf(0.0),
			Extract: func(owner reflect.Value) (reflect.Value, error) {
				if owner.Field(1).Float() < 0 {
					return reflect.Value{}, cause
				}
				return reflect.ValueOf(owner.Field(1).Float() * 2), nil
			},
		},
	})
	mustOK(t, err)

	s, err := CompileSingle(set, options(true))
	mustOK(t, err)

	ctx := example.NewContext()
	mustOK(t, s.Serialize(ctx, reflect.ValueOf(item{Name: "ok", W: 2}), nil))
	if got := feat(t, ctx.Examples()[0], "computed").Value.Number; got != 4 {
		t.Errorf("computed = %v, want 4", got)
	}

	err = s.Serialize(ctx, reflect.ValueOf(item{Name: "bad", W: -1}), nil)
	if !errors.IsExtraction(err) || errors.IsSchema(err) {
		t.Fatalf("error = %v, want an extraction error", err)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("error should wrap the extractor's cause: %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || !slices.Equal(e.Path, []string{"computed"}) {
		t.Errorf("error path = %v, want [computed]", e)
	}
	if ctx.Len() != 1 {
		t.Errorf("Len = %d, the failed call must leave no partial example", ctx.Len())
	}
}

func TestCompileSingle_ExtractedTypeMismatch(t *testing.T) {
	typ := reflect.TypeOf(item{})
	set, err := feature.NewSet(typ, []*feature.Descriptor{
		{Name: "name", Type: reflect.TypeOf(""), Index: []int{0}},
		{
			Name: "count",
			Type: reflect.TypeOf(0.0),
			Extract: func(reflect.Value) (reflect.Value, error) {
				return reflect.ValueOf(int(2)), nil
			},
		},
	})
	mustOK(t, err)

	for _, codegen := range []bool{true, false} {
		t.Run(Options{Codegen: codegen}.mode(), func(t *testing.T) {
			s, err := CompileSingle(set, options(codegen))
			mustOK(t, err)

			ctx := example.NewContext()
			err = s.Serialize(ctx, reflect.ValueOf(item{Name: "x", W: 1}), nil)
			e := wantErr(t, err, errors.PhaseSerialize, errors.KindTypeMismatch)
			if e.GoType != "int" || e.WireType != "f64" {
				t.Errorf("error types = %q/%q, want int/f64", e.GoType, e.WireType)
			}
			if !slices.Equal(e.Path, []string{"count"}) {
				t.Errorf("error path = %v, want [count]", e.Path)
			}
			if errors.IsSchema(err) {
				t.Error("a per-call mismatch is not a schema error")
			}
			if ctx.Len() != 0 {
				t.Errorf("Len = %d after a failed call", ctx.Len())
			}
		})
	}
}

func TestCompileSingle_StringExamples(t *testing.T) {
	opts := options(true)
	opts.StringExamples = true
	m, err := TryCompile(reflect.TypeOf(scenario{}), discover(t, scenario{}), opts)
	mustOK(t, err)

	ctx := example.NewContext()
	mustOK(t, m.SerializeAt(ctx, reflect.ValueOf(scenarioValue()), label.ContextualBandit{Action: 1, Cost: 1, Probability: 0.5}, 0))
	if got, want := ctx.Text(), "shared | ctx:3\n1:1:0.5 | name_a w:1\n| name_b w:2"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	if got := ctx.Examples()[2].Text; got != "| name_b w:2" {
		t.Errorf("last example Text = %q", got)
	}
}

type chanFeaturizer struct{}

func (chanFeaturizer) Featurize(d *feature.Descriptor) (feature.Writer, bool, error) {
	if d.Type.Kind() != reflect.Chan {
		return nil, false, nil
	}
	return func(ctx *example.Context, d *feature.Descriptor, v reflect.Value) error {
		return ctx.Write(d.Namespace, d.Name, example.Number(float64(v.Len())))
	}, true, nil
}

type failingFeaturizer struct{}

func (failingFeaturizer) Featurize(*feature.Descriptor) (feature.Writer, bool, error) {
	return nil, false, stderrors.New("no")
}

func TestCompileSingle_Featurizer(t *testing.T) {
	type queued struct {
		Depth float64  `vw:"depth"`
		Queue chan int `vw:"queue"`
	}

	t.Run("claims unsupported types", func(t *testing.T) {
		opts := options(true)
		opts.Featurizer = chanFeaturizer{}
		s, err := CompileSingle(discover(t, queued{}), opts)
		mustOK(t, err)

		q := make(chan int, 4)
		q <- 1
		q <- 2
		ctx := example.NewContext()
		mustOK(t, s.Serialize(ctx, reflect.ValueOf(queued{Depth: 1, Queue: q}), nil))
		if got := feat(t, ctx.Examples()[0], "queue").Value.Number; got != 2 {
			t.Errorf("queue = %v, want 2", got)
		}
	})

	t.Run("errors are schema errors", func(t *testing.T) {
		opts := options(true)
		opts.Featurizer = failingFeaturizer{}
		_, err := CompileSingle(discover(t, item{}), opts)
		e := wantErr(t, err, errors.PhaseCompile, errors.KindUnsupported)
		if !errors.IsSchema(err) {
			t.Error("featurizer errors are schema errors")
		}
		if e.WireType != "string" {
			t.Errorf("WireType = %q, want string", e.WireType)
		}
	})
}

func newFactory(t *testing.T, s config.Settings, opts ...FactoryOption) *Factory {
	t.Helper()
	f, err := NewFactory(s, opts...)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return f
}

type countingDiscoverer struct {
	inner feature.Discoverer
	mu    sync.Mutex
	calls map[reflect.Type]int
}

func (c *countingDiscoverer) Discover(t reflect.Type) (*feature.Set, error) {
	c.mu.Lock()
	c.calls[t]++
	c.mu.Unlock()
	return c.inner.Discover(t)
}

func (c *countingDiscoverer) count(t reflect.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[t]
}

type recorder struct {
	mu       sync.Mutex
	compiled map[string]int
	hits     int
}

func (r *recorder) Compiled(shape string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.compiled[shape]++
	}
}

func (r *recorder) CacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func TestFactory_Single(t *testing.T) {
	f := newFactory(t, config.Default())
	s, err := For[profile](f)
	mustOK(t, err)
	if s.IsMulti() {
		t.Fatal("profile should compile to a single-line serializer")
	}

	ref, err := CompileSingle(discover(t, profile{}), options(true))
	mustOK(t, err)

	v := profile{Age: 5, Name: "z", Geo: geo{City: "Rome"}}
	a, b := example.NewContext(), example.NewContext()
	mustOK(t, s.Serialize(a, v, nil))
	mustOK(t, ref.Serialize(b, reflect.ValueOf(v), nil))
	if err := example.Diff(b.Examples(), a.Examples()); err != nil {
		t.Errorf("factory output differs: %v", err)
	}

	err = s.SerializeAt(example.NewContext(), v, label.Simple{Label: 1}, 0)
	wantErr(t, err, errors.PhaseSerialize, errors.KindInvalidInput)
}

func TestFactory_Multi(t *testing.T) {
	f := newFactory(t, config.Default())
	s, err := For[*scenario](f)
	mustOK(t, err)
	if !s.IsMulti() || s.Compiled() == nil {
		t.Fatal("scenario should compile to a multi-line serializer")
	}

	v := scenarioValue()
	ctx := example.NewContext()
	mustOK(t, s.SerializeAt(ctx, &v, label.ContextualBandit{Action: 1, Probability: 1}, 0))
	if n := len(ctx.Examples()); n != 3 {
		t.Errorf("%d examples, want 3", n)
	}
	if n := f.Accessors().Len(); n != 1 {
		t.Errorf("accessor cache holds %d entries, want 1", n)
	}
	if s.Serialize(ctx, nil, nil) == nil {
		t.Error("nil instance should fail")
	}
}

func TestFactory_CompilesOnce(t *testing.T) {
	counter := &countingDiscoverer{
		inner: discovery.New(discovery.ModeTagged),
		calls: make(map[reflect.Type]int),
	}
	rec := &recorder{compiled: make(map[string]int)}
	f := newFactory(t, config.Default(), WithDiscoverer(counter), WithRecorder(rec))

	const workers = 32
	results := make([]Compiled, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := For[scenario](f)
			if err != nil {
				t.Errorf("For: %v", err)
				return
			}
			results[i] = s.Compiled()
		}()
	}
	wg.Wait()

	for i, c := range results {
		if c != results[0] {
			t.Errorf("worker %d got a different serializer", i)
		}
	}
	if n := counter.count(reflect.TypeOf(scenario{})); n != 1 {
		t.Errorf("discovered %d times, want 1", n)
	}
	if n := rec.compiled["multi"]; n != 1 {
		t.Errorf("compiled %d times, want 1", n)
	}

	_, err := For[scenario](f)
	mustOK(t, err)
	if rec.hits < 1 {
		t.Errorf("cache hits = %d, want at least 1", rec.hits)
	}
}

func TestFactory_PerFactoryCache(t *testing.T) {
	a := newFactory(t, config.Default())
	s := config.Default()
	s.Codegen = false
	b := newFactory(t, s)

	sa, err := For[item](a)
	mustOK(t, err)
	sb, err := For[item](b)
	mustOK(t, err)
	if sa.Compiled() == sb.Compiled() {
		t.Error("factories should not share compiled serializers")
	}
	if b.Settings().Codegen {
		t.Error("Settings().Codegen = true, want false")
	}
}

func TestFactory_JSONDiscovery(t *testing.T) {
	type jsonItem struct {
		Name string  `json:"name"`
		W    float64 `json:"w"`
	}
	type jsonOuter struct {
		User  string     `json:"user"`
		Multi []jsonItem `json:"_multi"`
	}
	s := config.Default()
	s.Discovery = config.DiscoveryJSON
	f := newFactory(t, s)
	ser, err := For[jsonOuter](f)
	mustOK(t, err)
	if !ser.IsMulti() {
		t.Fatal("jsonOuter should compile to a multi-line serializer")
	}

	ctx := example.NewContext()
	mustOK(t, ser.Serialize(ctx, jsonOuter{User: "u1", Multi: []jsonItem{{Name: "a"}}}, nil))
	if n := len(ctx.Examples()); n != 2 {
		t.Errorf("%d examples, want 2", n)
	}
}

func TestFactory_Errors(t *testing.T) {
	f := newFactory(t, config.Default())
	if _, err := For[int](f); !errors.IsSchema(err) {
		t.Errorf("For[int] error = %v, want a schema error", err)
	}
	if _, err := f.Compile(nil); err == nil {
		t.Error("Compile(nil) should fail")
	}

	s := config.Default()
	s.AccessorCacheSize = 0
	if _, err := NewFactory(s); err == nil {
		t.Error("NewFactory should validate settings")
	}
}

func TestAccessorCache(t *testing.T) {
	cache, err := NewAccessorCache(4)
	mustOK(t, err)
	opts := options(true)
	opts.Accessors = cache

	set := discover(t, scenario{})
	for range 3 {
		_, err := TryCompile(reflect.TypeOf(scenario{}), set, opts)
		mustOK(t, err)
	}
	if n := cache.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}

	_, err = TryCompile(reflect.TypeOf(actionsOnly{}), discover(t, actionsOnly{}), opts)
	mustOK(t, err)
	if n := cache.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}

	var none *AccessorCache
	if none.Len() != 0 {
		t.Error("nil cache should be empty")
	}

	if _, err := NewAccessorCache(0); err == nil {
		t.Error("NewAccessorCache(0) should fail")
	}
}

func TestOrderStability(t *testing.T) {
	f := newFactory(t, config.Default())
	s, err := For[profile](f)
	mustOK(t, err)

	want := []string{"rank", "age", "name", "geo", "tags", "active"}
	for i := range 5 {
		ctx := example.NewContext()
		v := profile{Age: i, Name: "n", Tags: []string{"t"}, Active: true}
		mustOK(t, s.Serialize(ctx, v, nil))
		if got := ctx.Examples()[0].Names(); !slices.Equal(got, want) {
			t.Errorf("call %d: names = %v, want %v", i, got, want)
		}
	}
}
