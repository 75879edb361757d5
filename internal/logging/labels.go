package logging

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LevelLabel is the label carrying the per-entry severity.
const LevelLabel = "level"

type Label struct {
	Name  string
	Value string
}

// LabelSet is an ordered set of labels. Order drives serialization; grouping
// goes through Key, which ignores order.
type LabelSet struct {
	labels []Label
}

// NewLabelSet builds a set from name/value pairs, keeping their order.
func NewLabelSet(pairs ...string) (LabelSet, error) {
	if len(pairs)%2 != 0 {
		return LabelSet{}, errors.New("labels must be given as name/value pairs")
	}

	var ls LabelSet
	for i := 0; i < len(pairs); i += 2 {
		if err := ls.add(pairs[i], pairs[i+1]); err != nil {
			return LabelSet{}, err
		}
	}
	return ls, nil
}

// LabelSetFromMap builds a set from m with names sorted, since map order is
// not stable.
func LabelSetFromMap(m map[string]string) (LabelSet, error) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	var ls LabelSet
	for _, k := range names {
		if err := ls.add(k, m[k]); err != nil {
			return LabelSet{}, err
		}
	}
	return ls, nil
}

func (ls *LabelSet) add(name, value string) error {
	if name == "" {
		return errors.New("label name must not be empty")
	}
	if _, has := ls.Get(name); has {
		return fmt.Errorf("duplicate label %q", name)
	}
	ls.labels = append(ls.labels, Label{Name: name, Value: value})
	return nil
}

func (ls LabelSet) Len() int { return len(ls.labels) }

func (ls LabelSet) Get(name string) (string, bool) {
	for _, l := range ls.labels {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// Labels returns a copy of the labels in order.
func (ls LabelSet) Labels() []Label {
	return append([]Label(nil), ls.labels...)
}

func (ls LabelSet) Map() map[string]string {
	m := make(map[string]string, len(ls.labels))
	for _, l := range ls.labels {
		m[l.Name] = l.Value
	}
	return m
}

// With returns a new set with name=value placed first. An existing label of
// the same name is replaced.
func (ls LabelSet) With(name, value string) LabelSet {
	out := make([]Label, 0, len(ls.labels)+1)
	out = append(out, Label{Name: name, Value: value})
	for _, l := range ls.labels {
		if l.Name != name {
			out = append(out, l)
		}
	}
	return LabelSet{labels: out}
}

// Key is the canonical grouping key: sorted, quoted name=value pairs.
func (ls LabelSet) Key() string {
	pairs := make([]string, len(ls.labels))
	for i, l := range ls.labels {
		pairs[i] = strconv.Quote(l.Name) + "=" + strconv.Quote(l.Value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (ls LabelSet) String() string {
	pairs := make([]string, len(ls.labels))
	for i, l := range ls.labels {
		pairs[i] = fmt.Sprintf("%s=%q", l.Name, l.Value)
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// ValidateStatic checks a set meant to be used as handler-level labels.
func (ls LabelSet) ValidateStatic() error {
	if _, has := ls.Get(LevelLabel); has {
		return fmt.Errorf("static label %q is reserved for the entry level", LevelLabel)
	}
	return nil
}

// UnmarshalYAML keeps the mapping order of the document.
func (ls *LabelSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*ls = LabelSet{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: labels must be a mapping", node.Line)
	}

	var out LabelSet
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: label %q must have a scalar value", val.Line, key.Value)
		}
		if err := out.add(key.Value, val.Value); err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}
	}
	*ls = out
	return nil
}
