// Package netlist loads a model description written in HCL and turns it
// into a graph and a ready to evaluate problem.
//
//	name = "drive"
//
//	component "inv" {
//	  type     = "inverter"
//	  options  = { thermal = true }
//	  promotes = ["*"]
//	}
//
//	inputs = {
//	  bus_voltage     = 800
//	  "dc_link_cap.C" = "100u"
//	  temperature_ambient = "40 degC"
//	}
//
//	solver { abs_tol = 1e-12 }
//	totals { of = ["efficiency"], wrt = ["bus_voltage"] }
package netlist

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/edp1096/invertermodel/internal/ctxlog"
	"github.com/edp1096/invertermodel/pkg/analysis"
	"github.com/edp1096/invertermodel/pkg/device"
	"github.com/edp1096/invertermodel/pkg/graph"
	"github.com/edp1096/invertermodel/pkg/inverter"
	"github.com/edp1096/invertermodel/pkg/units"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

var ErrInvalidValue = errors.New("invalid value")

// Load parses and decodes a model file.
func Load(ctx context.Context, path string) (*Config, error) {
	ctxlog.FromContext(ctx).Debug("Decoding model file.", "path", path)
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decode(ctx, path, file)
}

// Parse decodes a model from memory. filename only appears in diagnostics.
func Parse(ctx context.Context, filename string, src []byte) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(ctx, filename, file)
}

func decode(ctx context.Context, filename string, file *hcl.File) (*Config, error) {
	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	if cfg.Name == "" {
		cfg.Name = "model"
	}
	if len(cfg.Components) == 0 {
		return nil, fmt.Errorf("%s: no components", filename)
	}

	ctxlog.FromContext(ctx).Debug("Successfully decoded model file.",
		"path", filename, "components", len(cfg.Components), "connections", len(cfg.Connects))
	return &cfg, nil
}

// Graph builds the component graph.
func (c *Config) Graph() (*graph.Graph, error) {
	g := graph.New(c.Name)
	for _, comp := range c.Components {
		opts, err := comp.options()
		if err != nil {
			return nil, err
		}
		promotes := comp.promotions()

		if comp.Type == "inverter" {
			sub, err := inverter.New(comp.Name, opts)
			if err != nil {
				return nil, err
			}
			if err := g.AddGroup(sub, promotes...); err != nil {
				return nil, err
			}
			continue
		}

		dev, err := device.New(comp.Type, comp.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", comp.Name, err)
		}
		if err := g.Add(dev, promotes...); err != nil {
			return nil, err
		}
	}

	for _, conn := range c.Connects {
		if err := g.Connect(conn.From, conn.To); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Problem builds the graph, applies the solver settings and sets the inputs.
func (c *Config) Problem(ctx context.Context) (*analysis.Problem, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	plan, err := g.Build(ctx)
	if err != nil {
		return nil, err
	}

	var opts []analysis.Option
	if s := c.Solver; s != nil {
		opts = append(opts, analysis.WithConvergence(analysis.Convergence{
			MaxIter:          s.MaxIter,
			AbsTol:           s.AbsTol,
			RelTol:           s.RelTol,
			MaxBacktrack:     s.MaxBacktrack,
			StallLimit:       s.StallLimit,
			DivergenceFactor: s.DivergenceFactor,
			Step:             s.Step,
		}))
	}
	p := analysis.NewProblem(plan, opts...)
	if err := c.applyInputs(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (comp *Component) options() (map[string]any, error) {
	if comp.Options == nil || comp.Options.IsNull() {
		return nil, nil
	}
	v, err := toGo(*comp.Options)
	if err != nil {
		return nil, fmt.Errorf("component %s options: %w", comp.Name, err)
	}
	opts, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("component %s: options must be an object: %w", comp.Name, ErrInvalidValue)
	}
	return opts, nil
}

func (comp *Component) promotions() []graph.Promotion {
	var ps []graph.Promotion
	for _, name := range comp.Promotes {
		if name == "*" {
			ps = append(ps, graph.PromoteAll())
			continue
		}
		ps = append(ps, graph.Promote(name)...)
	}

	inner := make([]string, 0, len(comp.Aliases))
	for k := range comp.Aliases {
		inner = append(inner, k)
	}
	sort.Strings(inner)
	for _, k := range inner {
		ps = append(ps, graph.PromoteAs(k, comp.Aliases[k]))
	}
	return ps
}

// applyInputs sets the independent inputs. Values are numbers, engineering
// strings with an optional unit, or lists of either.
func (c *Config) applyInputs(p *analysis.Problem) error {
	if c.Inputs == nil || c.Inputs.IsNull() {
		return nil
	}
	val := *c.Inputs
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return fmt.Errorf("inputs must be an object: %w", ErrInvalidValue)
	}

	values := val.AsValueMap()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, err := p.Plan().Independent(name)
		if err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		xs, err := quantities(values[name], v.Unit)
		if err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		if err := p.SetInput(name, xs); err != nil {
			return err
		}
	}
	return nil
}

func quantities(val cty.Value, to units.Unit) ([]float64, error) {
	if val.Type().IsTupleType() || val.Type().IsListType() {
		var out []float64
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			x, err := quantity(elem, to)
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		}
		return out, nil
	}
	x, err := quantity(val, to)
	if err != nil {
		return nil, err
	}
	return []float64{x}, nil
}

func quantity(val cty.Value, to units.Unit) (float64, error) {
	if !val.IsKnown() || val.IsNull() {
		return 0, fmt.Errorf("null value: %w", ErrInvalidValue)
	}
	switch val.Type() {
	case cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case cty.String:
		x, unit, err := ParseQuantity(val.AsString())
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		if unit == "" {
			return x, nil
		}
		from, err := units.Parse(unit)
		if err != nil {
			return 0, err
		}
		conv, err := units.Convert(from, to)
		if err != nil {
			return 0, err
		}
		return conv.Float(x), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidValue, val.Type().FriendlyName())
}

// toGo converts a cty value to plain Go values for component options.
func toGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	t := val.Type()
	switch {
	case t == cty.String:
		return val.AsString(), nil
	case t == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case t == cty.Bool:
		return val.True(), nil
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			x, err := toGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = x
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %s", ErrInvalidValue, t.FriendlyName())
}
