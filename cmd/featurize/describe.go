package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/serializer"
	"github.com/wippyai/featurize/wire"
)

var (
	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))
)

// describe writes the wire type of every feature the decision serializer emits,
// shared features first, then the features of one action.
func (p *pipeline) describe(out io.Writer, d feature.Discoverer, styled bool) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	switch c := p.serializer.Compiled().(type) {
	case *serializer.Multi:
		if c.Shared() != nil {
			fmt.Fprintln(w, "shared")
			if err := describeSet(w, d, c.Shared().Set(), 1, styled); err != nil {
				return err
			}
		}
		elem, err := wire.Deref(c.Element())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "actions: %s\n", elem.Name())
		if err := describeSet(w, d, c.Action().Set(), 1, styled); err != nil {
			return err
		}
	case *serializer.Single:
		if err := describeSet(w, d, c.Set(), 0, styled); err != nil {
			return err
		}
	}
	return w.Flush()
}

func describeSet(w io.Writer, d feature.Discoverer, set *feature.Set, depth int, styled bool) error {
	indent := strings.Repeat("  ", depth)
	for desc := range set.All() {
		wt, err := wire.Of(desc.Type)
		if err != nil {
			fmt.Fprintf(w, "%s%s: %s\n", indent, styleName(featureName(desc), styled), styleType("custom", styled))
			continue
		}
		kind := wire.Classify(wt)
		fmt.Fprintf(w, "%s%s: %s\n", indent, styleName(featureName(desc), styled), styleType(witTypeStr(wt, kind), styled))

		if kind != wire.KindGroup {
			continue
		}
		inner, err := d.Discover(desc.Type)
		if err != nil {
			return err
		}
		if err := describeSet(w, d, inner, depth+1, styled); err != nil {
			return err
		}
	}
	return nil
}

func featureName(d *feature.Descriptor) string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}

func witTypeStr(t wit.Type, kind wire.Kind) string {
	return wire.Name(t) + " (" + kind.String() + ")"
}

func styleName(s string, styled bool) string {
	if !styled {
		return s
	}
	return nameStyle.Render(s)
}

func styleType(s string, styled bool) string {
	if !styled {
		return s
	}
	return typeStyle.Render(s)
}
