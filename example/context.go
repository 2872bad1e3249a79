package example

import (
	"strings"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/label"
)

// Context accumulates the examples produced by serializer calls.
//
// A Context is owned by one caller at a time. Serializers are safe for concurrent use
// only when each call gets its own Context.
type Context struct {
	examples []Example
	groups   []group
	lines    []string
	open     bool
}

type group struct {
	namespace string
	name      string
	features  []Feature
}

// Mark records the state of a Context so a failed call can be undone.
type Mark struct {
	examples int
	lines    int
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{}
}

// Begin opens a new example.
func (c *Context) Begin(shared bool, lbl label.Label) error {
	if c.open {
		return errors.InvalidInput(errors.PhaseSerialize, "example already open")
	}
	c.examples = append(c.examples, Example{Label: lbl, Shared: shared})
	c.open = true
	return nil
}

// Write appends a feature to the innermost open group, or to the open example.
func (c *Context) Write(namespace, name string, v Value) error {
	if !c.open {
		return errors.InvalidInput(errors.PhaseSerialize, "no open example")
	}
	f := Feature{Namespace: namespace, Name: name, Value: v}
	if n := len(c.groups); n > 0 {
		c.groups[n-1].features = append(c.groups[n-1].features, f)
		return nil
	}
	ex := &c.examples[len(c.examples)-1]
	ex.Features = append(ex.Features, f)
	return nil
}

// BeginGroup opens a nested feature group.
func (c *Context) BeginGroup(namespace, name string) error {
	if !c.open {
		return errors.InvalidInput(errors.PhaseSerialize, "no open example")
	}
	c.groups = append(c.groups, group{namespace: namespace, name: name})
	return nil
}

// EndGroup closes the innermost group and writes it as a single feature.
func (c *Context) EndGroup() error {
	n := len(c.groups)
	if n == 0 {
		return errors.InvalidInput(errors.PhaseSerialize, "no open group")
	}
	g := c.groups[n-1]
	c.groups = c.groups[:n-1]
	return c.Write(g.namespace, g.name, Group(g.features))
}

// End closes the open example.
func (c *Context) End() error {
	if !c.open {
		return errors.InvalidInput(errors.PhaseSerialize, "no open example")
	}
	if len(c.groups) > 0 {
		return errors.InvalidInput(errors.PhaseSerialize, "unclosed feature group")
	}
	c.open = false
	return nil
}

// Render formats the most recently closed example as an engine text line, stores it on
// the example and appends it to the context's text form.
func (c *Context) Render() (string, error) {
	if c.open || len(c.examples) == 0 {
		return "", errors.InvalidInput(errors.PhaseSerialize, "no closed example to render")
	}
	ex := &c.examples[len(c.examples)-1]
	ex.Text = Format(ex)
	c.lines = append(c.lines, ex.Text)
	return ex.Text, nil
}

// Mark returns the current state of the context.
func (c *Context) Mark() Mark {
	return Mark{examples: len(c.examples), lines: len(c.lines)}
}

// Rollback discards everything written after m, including any open example.
func (c *Context) Rollback(m Mark) {
	if m.examples < len(c.examples) {
		clear(c.examples[m.examples:])
		c.examples = c.examples[:m.examples]
	}
	if m.lines < len(c.lines) {
		c.lines = c.lines[:m.lines]
	}
	c.groups = c.groups[:0]
	c.open = false
}

// Examples returns the closed examples in production order. The slice is owned by the
// context and valid until the next Reset.
func (c *Context) Examples() []Example {
	if c.open {
		return c.examples[:len(c.examples)-1]
	}
	return c.examples
}

// Len returns the number of examples written.
func (c *Context) Len() int {
	return len(c.examples)
}

// Text returns the rendered lines joined by newlines.
func (c *Context) Text() string {
	return strings.Join(c.lines, "\n")
}

// Reset empties the context for reuse.
func (c *Context) Reset() {
	c.Rollback(Mark{})
}
