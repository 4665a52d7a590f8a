package graph

import (
	"fmt"
	"math"
	"sort"
)

// OptionSpec declares one component option. The type of Default fixes the
// option type; a Required option has no usable default.
type OptionSpec struct {
	Name     string
	Default  any
	Required bool
	Desc     string
	Check    func(v any) error
}

// Options is an immutable, validated option record.
type Options struct {
	values map[string]any
}

// ParseOptions validates set against specs. Unknown names, type mismatches,
// missing required options and failed checks are errors.
func ParseOptions(specs []OptionSpec, set map[string]any) (Options, error) {
	known := make(map[string]OptionSpec, len(specs))
	values := make(map[string]any, len(specs))
	for _, s := range specs {
		known[s.Name] = s
		if !s.Required {
			values[s.Name] = s.Default
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec, ok := known[name]
		if !ok {
			return Options{}, fmt.Errorf("%w: %q", ErrUnknownOption, name)
		}
		v, err := coerce(spec.Default, set[name])
		if err != nil {
			return Options{}, fmt.Errorf("option %s: %w", name, err)
		}
		if spec.Check != nil {
			if err := spec.Check(v); err != nil {
				return Options{}, fmt.Errorf("option %s: %w: %v", name, ErrInvalidOption, err)
			}
		}
		values[name] = v
	}

	for _, s := range specs {
		if _, ok := values[s.Name]; !ok {
			return Options{}, fmt.Errorf("option %s: %w: required", s.Name, ErrInvalidOption)
		}
	}
	return Options{values: values}, nil
}

func coerce(def, v any) (any, error) {
	switch def.(type) {
	case float64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case int:
		switch x := v.(type) {
		case int:
			return x, nil
		case int64:
			return int(x), nil
		case float64:
			if x == math.Trunc(x) {
				return int(x), nil
			}
		}
	case bool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case string:
		if x, ok := v.(string); ok {
			return x, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %v (%T) for %T option", ErrInvalidOption, v, v, def)
}

// Float returns a float64 option. It panics on a name the component did not
// declare, which is a programming error.
func (o Options) Float(name string) float64 { return get[float64](o, name) }

func (o Options) Int(name string) int { return get[int](o, name) }

func (o Options) Bool(name string) bool { return get[bool](o, name) }

func (o Options) String(name string) string { return get[string](o, name) }

// Value returns the raw option value.
func (o Options) Value(name string) (any, bool) {
	v, ok := o.values[name]
	return v, ok
}

func get[T any](o Options, name string) T {
	v, ok := o.values[name].(T)
	if !ok {
		panic(fmt.Sprintf("graph: option %q is not a declared %T", name, v))
	}
	return v
}

// Positive rejects non-positive numbers.
func Positive(v any) error {
	switch x := v.(type) {
	case float64:
		if x > 0 {
			return nil
		}
	case int:
		if x > 0 {
			return nil
		}
	}
	return fmt.Errorf("must be positive, got %v", v)
}
