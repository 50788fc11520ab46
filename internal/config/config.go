// Package config loads an HCL description of an operator graph and the
// compile options that drive planning and layout. The HCL surface is a
// harness convenience for the CLI and tests; the compile pass itself only
// consumes the materialized operators and options.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/signalgrid/internal/signal"
)

// Options are the compile knobs. Zero values mean "use the default".
type Options struct {
	// Planner selects the planning strategy: greedy, tree, noop, or
	// transitive.
	Planner string `hcl:"planner,optional"`
	// FloatType is the simulation precision: float32 or float64.
	FloatType string `hcl:"float_type,optional"`
	// MinibatchSize is the number of minibatch copies in the layout.
	MinibatchSize int `hcl:"minibatch_size,optional"`
	// SortPasses caps the signal order refinement loop.
	SortPasses int `hcl:"sort_passes,optional"`
}

// SignalBlock describes one base signal.
type SignalBlock struct {
	Name        string    `hcl:"name,label"`
	Dtype       string    `hcl:"dtype,optional"`
	Shape       []int     `hcl:"shape,optional"`
	Trainable   bool      `hcl:"trainable,optional"`
	Minibatched bool      `hcl:"minibatched,optional"`
	Initial     []float64 `hcl:"initial,optional"`
}

// OperatorBlock describes one operator and the signals it touches, by name.
type OperatorBlock struct {
	Kind        string   `hcl:"kind,label"`
	Name        string   `hcl:"name,label"`
	Sets        []string `hcl:"sets,optional"`
	Incs        []string `hcl:"incs,optional"`
	Reads       []string `hcl:"reads,optional"`
	Updates     []string `hcl:"updates,optional"`
	Inc         bool     `hcl:"inc,optional"`
	UsesTime    bool     `hcl:"uses_time,optional"`
	NeuronModel string   `hcl:"neuron_model,optional"`
	States      []string `hcl:"states,optional"`
	Process     string   `hcl:"process,optional"`
	Specialized bool     `hcl:"specialized,optional"`
	Mode        string   `hcl:"mode,optional"`
}

// Model is the decoded HCL document.
type Model struct {
	Options   *Options        `hcl:"options,block"`
	Signals   []SignalBlock   `hcl:"signal,block"`
	Operators []OperatorBlock `hcl:"operator,block"`
}

// LoadFile parses and decodes an HCL file.
func LoadFile(path string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return decode(file, path)
}

// Parse decodes an HCL document from memory. filename only labels
// diagnostics.
func Parse(src []byte, filename string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	return decode(file, filename)
}

// decode evaluates the document's locals blocks into an eval context and
// decodes the rest of the body against it, so attributes can reference
// local.<name> values.
func decode(file *hcl.File, name string) (*Model, error) {
	content, remain, diags := file.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "locals"}},
	})
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", name, diags)
	}

	locals := make(map[string]cty.Value)
	for _, block := range content.Blocks {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", name, diags)
		}
		// Locals are evaluated with an empty context: literals only, no
		// references between locals.
		for attrName, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("evaluating local %q in %s: %w", attrName, name, diags)
			}
			locals[attrName] = val
		}
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"local": cty.ObjectVal(locals)},
	}
	var model Model
	if diags := gohcl.DecodeBody(remain, evalCtx, &model); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", name, diags)
	}
	return &model, nil
}

// EffectiveOptions returns the options with defaults applied.
func (m *Model) EffectiveOptions() Options {
	opts := Options{}
	if m.Options != nil {
		opts = *m.Options
	}
	if opts.Planner == "" {
		opts.Planner = "greedy"
	}
	if opts.FloatType == "" {
		opts.FloatType = "float32"
	}
	if opts.MinibatchSize == 0 {
		opts.MinibatchSize = 1
	}
	return opts
}

// Materialize builds the operator set described by the model. All signal
// references are resolved by name; unknown names are an error.
func (m *Model) Materialize() ([]*signal.Operator, error) {
	sigs := make(map[string]*signal.Signal, len(m.Signals))
	for _, sb := range m.Signals {
		if _, dup := sigs[sb.Name]; dup {
			return nil, fmt.Errorf("duplicate signal %q", sb.Name)
		}
		dtypeName := sb.Dtype
		if dtypeName == "" {
			dtypeName = "float32"
		}
		dtype, err := signal.ParseDtype(dtypeName)
		if err != nil {
			return nil, fmt.Errorf("signal %q: %w", sb.Name, err)
		}
		s := signal.New(sb.Name, dtype, sb.Shape...)
		s.Trainable = sb.Trainable
		s.Minibatched = sb.Minibatched
		if len(sb.Initial) > 0 {
			s.Initial = sb.Initial
		}
		sigs[sb.Name] = s
	}

	resolve := func(opName string, names []string) ([]*signal.Signal, error) {
		out := make([]*signal.Signal, 0, len(names))
		for _, name := range names {
			s, ok := sigs[name]
			if !ok {
				return nil, fmt.Errorf("operator %q references unknown signal %q", opName, name)
			}
			out = append(out, s)
		}
		return out, nil
	}

	ops := make([]*signal.Operator, 0, len(m.Operators))
	for _, ob := range m.Operators {
		kind, err := parseKind(ob.Kind)
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", ob.Name, err)
		}
		mode, err := parseMode(ob.Mode)
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", ob.Name, err)
		}

		op := &signal.Operator{
			Kind:        kind,
			Label:       ob.Name,
			Inc:         ob.Inc,
			UsesTime:    ob.UsesTime,
			NeuronModel: ob.NeuronModel,
			Process:     ob.Process,
			Specialized: ob.Specialized,
			Mode:        mode,
		}
		if op.Sets, err = resolve(ob.Name, ob.Sets); err != nil {
			return nil, err
		}
		if op.Incs, err = resolve(ob.Name, ob.Incs); err != nil {
			return nil, err
		}
		if op.Reads, err = resolve(ob.Name, ob.Reads); err != nil {
			return nil, err
		}
		if op.Updates, err = resolve(ob.Name, ob.Updates); err != nil {
			return nil, err
		}
		if op.States, err = resolve(ob.Name, ob.States); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseKind(s string) (signal.Kind, error) {
	switch s {
	case "reset":
		return signal.KindReset, nil
	case "copy":
		return signal.KindCopy, nil
	case "elementwise_inc":
		return signal.KindElementwiseInc, nil
	case "func_call":
		return signal.KindFuncCall, nil
	case "neuron_step":
		return signal.KindNeuronStep, nil
	case "process_step":
		return signal.KindProcessStep, nil
	case "user_func":
		return signal.KindUserFunc, nil
	default:
		return 0, fmt.Errorf("unknown operator kind %q", s)
	}
}

func parseMode(s string) (signal.Mode, error) {
	switch s {
	case "", "update":
		return signal.ModeUpdate, nil
	case "inc":
		return signal.ModeInc, nil
	case "set":
		return signal.ModeSet, nil
	default:
		return 0, fmt.Errorf("unknown process mode %q", s)
	}
}
