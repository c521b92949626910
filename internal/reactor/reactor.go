// Package reactor decides which lifecycle hooks run for a build module.
//
// A multi-module build invokes gitsite once per module, in reactor order.
// Classify derives the module's position from its identifier and the ordered
// module list; Dispatch turns that position into hook calls. Identity is a
// stable module ID (coordinate or path), compared by value.
package reactor

import (
	"context"
	"fmt"
	"strings"
)

// Module identifies one build module of the reactor.
type Module struct {
	// ID is a stable identifier such as "group:artifact" or a module path.
	ID string `json:"id"`

	// ExecutionRoot is set by the build for the module it was invoked from.
	// It is independent of the module's position in the reactor.
	ExecutionRoot bool `json:"executionRoot"`
}

// Position is the set of hooks that apply to a module.
type Position uint8

const (
	// First is set for the first module of the reactor.
	First Position = 1 << iota

	// Root is set for the execution-root module.
	Root

	// Last is set for the last module of the reactor.
	Last

	// Each is always set.
	Each
)

var positionNames = []struct {
	flag Position
	name string
}{
	{First, "first"},
	{Root, "root"},
	{Last, "last"},
	{Each, "each"},
}

// Has reports whether every flag in flags is set in p.
func (p Position) Has(flags Position) bool {
	return p&flags == flags
}

// Names returns the names of the set flags in dispatch order.
func (p Position) Names() []string {
	names := make([]string, 0, len(positionNames))
	for _, pn := range positionNames {
		if p.Has(pn.flag) {
			names = append(names, pn.name)
		}
	}
	return names
}

// String returns the set flags joined by "|", e.g. "first|root|last|each".
func (p Position) String() string {
	return strings.Join(p.Names(), "|")
}

// Classify computes the position of current within ordered.
//
// An empty reactor violates a precondition of the host build; only Root
// (when flagged) and Each are reported in that case.
func Classify(current Module, ordered []Module) Position {
	pos := Each
	if current.ExecutionRoot {
		pos |= Root
	}
	if len(ordered) == 0 {
		return pos
	}
	if ordered[0].ID == current.ID {
		pos |= First
	}
	if ordered[len(ordered)-1].ID == current.ID {
		pos |= Last
	}
	return pos
}

// Hooks receives the lifecycle callbacks of a module invocation.
type Hooks interface {
	FirstModule(ctx context.Context, m Module) error
	RootModule(ctx context.Context, m Module) error
	LastModule(ctx context.Context, m Module) error
	EachModule(ctx context.Context, m Module) error
}

// NopHooks implements every hook as a no-op. Embed it to implement only
// the hooks you need.
type NopHooks struct{}

// FirstModule does nothing.
func (NopHooks) FirstModule(context.Context, Module) error { return nil }

// RootModule does nothing.
func (NopHooks) RootModule(context.Context, Module) error { return nil }

// LastModule does nothing.
func (NopHooks) LastModule(context.Context, Module) error { return nil }

// EachModule does nothing.
func (NopHooks) EachModule(context.Context, Module) error { return nil }

// Dispatch classifies current and fires the matching hooks in the order
// first, root, last, each. It stops at the first failing hook.
func Dispatch(ctx context.Context, current Module, ordered []Module, hooks Hooks) (Position, error) {
	pos := Classify(current, ordered)
	steps := []struct {
		flag Position
		name string
		fn   func(context.Context, Module) error
	}{
		{First, "first", hooks.FirstModule},
		{Root, "root", hooks.RootModule},
		{Last, "last", hooks.LastModule},
		{Each, "each", hooks.EachModule},
	}
	for _, step := range steps {
		if !pos.Has(step.flag) {
			continue
		}
		if err := step.fn(ctx, current); err != nil {
			return pos, fmt.Errorf("%s-module hook of %s: %w", step.name, current.ID, err)
		}
	}
	return pos, nil
}

// ParseModules builds an ordered reactor from a comma-separated list of
// module IDs. Blank entries are ignored; duplicates are rejected.
func ParseModules(list string) ([]Module, error) {
	return Modules(strings.Split(list, ","))
}

// Modules builds an ordered reactor from module IDs. Blank entries are
// ignored; duplicates are rejected.
func Modules(ids []string) ([]Module, error) {
	var modules []Module
	seen := make(map[string]bool)
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("module %q listed more than once in the reactor", id)
		}
		seen[id] = true
		modules = append(modules, Module{ID: id})
	}
	return modules, nil
}
