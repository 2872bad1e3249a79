package example

import (
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/featurize/wire"
)

// Format renders ex as an engine text line:
//
//	[label] |ns name:1.5 name_value flag |other ...
//
// Features without a namespace go to the default section. A nested group becomes its
// own section named after the group, with names of deeper groups prefixed to their
// features. Characters the engine treats as separators are replaced with '_'.
func Format(ex *Example) string {
	var b strings.Builder
	if ex.Label != nil {
		b.WriteString(ex.Label.String())
	}

	var sections []section
	collect(&sections, ex.Features, "", "")
	for _, s := range sections {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('|')
		b.WriteString(escape(s.namespace))
		for _, item := range s.items {
			b.WriteByte(' ')
			b.WriteString(item)
		}
	}
	return b.String()
}

type section struct {
	namespace string
	items     []string
}

func sectionFor(sections *[]section, ns string) *section {
	for i := range *sections {
		if (*sections)[i].namespace == ns {
			return &(*sections)[i]
		}
	}
	*sections = append(*sections, section{namespace: ns})
	return &(*sections)[len(*sections)-1]
}

// collect groups features by namespace in first-appearance order. forced is the
// namespace of an enclosing group and overrides the features' own namespaces.
func collect(sections *[]section, fs []Feature, forced, prefix string) {
	for _, f := range fs {
		name := prefix + f.Name
		if f.Value.Kind == wire.KindGroup {
			ns := forced
			if ns == "" {
				ns = f.Namespace
				if ns == "" {
					ns = f.Name
				}
				collect(sections, f.Value.Group, ns, "")
				continue
			}
			collect(sections, f.Value.Group, ns, name+"_")
			continue
		}

		ns := forced
		if ns == "" {
			ns = f.Namespace
		}
		items := render(name, f.Value)
		if len(items) == 0 {
			continue
		}
		s := sectionFor(sections, ns)
		s.items = append(s.items, items...)
	}
}

func render(name string, v Value) []string {
	name = escape(name)
	switch v.Kind {
	case wire.KindNumber:
		return []string{name + ":" + formatNumber(v.Number)}
	case wire.KindString:
		return []string{name + "_" + escape(v.Str)}
	case wire.KindBool:
		if v.Bool {
			return []string{name}
		}
	case wire.KindTokens:
		out := make([]string, 0, len(v.Tokens))
		for _, t := range v.Tokens {
			if t != "" {
				out = append(out, escape(t))
			}
		}
		return out
	case wire.KindVector:
		out := make([]string, len(v.Vector))
		for i, f := range v.Vector {
			out[i] = name + "_" + strconv.Itoa(i) + ":" + formatNumber(f)
		}
		return out
	case wire.KindDict:
		keys := make([]string, 0, len(v.Dict))
		for k := range v.Dict {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = escape(k) + ":" + formatNumber(v.Dict[k])
		}
		return out
	}
	return nil
}

var escaper = strings.NewReplacer(" ", "_", "\t", "_", "\n", "_", "\r", "_", "|", "_", ":", "_")

func escape(s string) string {
	return escaper.Replace(s)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
