package reactor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reactorOf(ids ...string) []Module {
	modules := make([]Module, len(ids))
	for i, id := range ids {
		modules[i] = Module{ID: id}
	}
	return modules
}

func TestClassify(t *testing.T) {
	ordered := reactorOf("parent", "core", "site")

	tests := []struct {
		name     string
		current  Module
		ordered  []Module
		expected Position
	}{
		{"first module, invoked from it", Module{ID: "parent", ExecutionRoot: true}, ordered, First | Root | Each},
		{"middle module", Module{ID: "core"}, ordered, Each},
		{"last module", Module{ID: "site"}, ordered, Last | Each},
		{"root is not first", Module{ID: "core", ExecutionRoot: true}, ordered, Root | Each},
		{"single module build", Module{ID: "only", ExecutionRoot: true}, reactorOf("only"), First | Root | Last | Each},
		{"unknown module", Module{ID: "other"}, ordered, Each},
		{"empty reactor", Module{ID: "x", ExecutionRoot: true}, nil, Root | Each},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.current, tt.ordered)
			assert.Equal(t, tt.expected, got, "got %s", got)
		})
	}
}

// TestClassifyComparesByValue verifies that a freshly constructed Module with
// the same ID is recognized, i.e. no identity comparison is involved.
func TestClassifyComparesByValue(t *testing.T) {
	ordered := reactorOf("a", "b")
	current := Module{ID: string([]byte("b"))}
	assert.True(t, Classify(current, ordered).Has(Last))
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "first|root|last|each", (First | Root | Last | Each).String())
	assert.Equal(t, "last|each", (Last | Each).String())
	assert.Equal(t, "", Position(0).String())
	assert.True(t, (Root | Each).Has(Root))
	assert.False(t, (Root | Each).Has(Root|Last))
}

// recordingHooks remembers the order in which hooks fire.
type recordingHooks struct {
	calls   []string
	failOn  string
	failErr error
}

func (h *recordingHooks) record(name string) error {
	h.calls = append(h.calls, name)
	if name == h.failOn {
		return h.failErr
	}
	return nil
}

func (h *recordingHooks) FirstModule(context.Context, Module) error { return h.record("first") }
func (h *recordingHooks) RootModule(context.Context, Module) error  { return h.record("root") }
func (h *recordingHooks) LastModule(context.Context, Module) error  { return h.record("last") }
func (h *recordingHooks) EachModule(context.Context, Module) error  { return h.record("each") }

func TestDispatchOrder(t *testing.T) {
	h := &recordingHooks{}
	pos, err := Dispatch(context.Background(), Module{ID: "only", ExecutionRoot: true}, reactorOf("only"), h)
	require.NoError(t, err)
	assert.Equal(t, First|Root|Last|Each, pos)
	if diff := cmp.Diff([]string{"first", "root", "last", "each"}, h.calls); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchMultiModule(t *testing.T) {
	ordered := reactorOf("parent", "core", "site")
	var all []string
	for _, m := range []Module{{ID: "parent", ExecutionRoot: true}, {ID: "core"}, {ID: "site"}} {
		h := &recordingHooks{}
		_, err := Dispatch(context.Background(), m, ordered, h)
		require.NoError(t, err)
		for _, c := range h.calls {
			all = append(all, m.ID+":"+c)
		}
	}
	want := []string{
		"parent:first", "parent:root", "parent:each",
		"core:each",
		"site:last", "site:each",
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	h := &recordingHooks{failOn: "root", failErr: boom}

	_, err := Dispatch(context.Background(), Module{ID: "only", ExecutionRoot: true}, reactorOf("only"), h)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "root-module hook of only")
	assert.Equal(t, []string{"first", "root"}, h.calls)
}

func TestNopHooks(t *testing.T) {
	type onlyLast struct {
		NopHooks
	}
	_, err := Dispatch(context.Background(), Module{ID: "a", ExecutionRoot: true}, reactorOf("a"), onlyLast{})
	assert.NoError(t, err)
}

func TestParseModules(t *testing.T) {
	modules, err := ParseModules(" parent, core ,,site ")
	require.NoError(t, err)
	assert.Equal(t, reactorOf("parent", "core", "site"), modules)

	modules, err = ParseModules("")
	require.NoError(t, err)
	assert.Empty(t, modules)

	_, err = ParseModules("a,b,a")
	assert.Error(t, err)
}
