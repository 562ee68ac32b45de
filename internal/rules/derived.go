package rules

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/underwriter/internal/domain"
)

// DerivedFields computes extra record fields from CEL expressions over the
// proposal fields. Programs are compiled once and are safe for concurrent use.
type DerivedFields struct {
	env      *cel.Env
	programs []derivedProgram
}

type derivedProgram struct {
	name       string
	expression string
	program    cel.Program
}

// proposalFieldNames lists every field a proposal contributes to a record.
func proposalFieldNames() []string {
	fields := (&domain.Proposal{}).Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDerivedFields compiles the given definitions. Every proposal field is
// declared as a dynamic variable, and the whole record is available as
// the map variable "record".
func NewDerivedFields(defs []domain.DerivedField) (*DerivedFields, error) {
	base := proposalFieldNames()

	opts := make([]cel.EnvOption, 0, len(base)+1)
	opts = append(opts, cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)))
	for _, name := range base {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	reserved := make(map[string]bool, len(base))
	for _, name := range base {
		reserved[name] = true
	}

	d := &DerivedFields{env: env}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("derived field name is required")
		}
		if reserved[def.Name] {
			return nil, fmt.Errorf("derived field %q shadows an existing field", def.Name)
		}
		reserved[def.Name] = true

		ast, issues := env.Compile(def.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile derived field %s: %w", def.Name, issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for derived field %s: %w", def.Name, err)
		}

		d.programs = append(d.programs, derivedProgram{
			name:       def.Name,
			expression: def.Expression,
			program:    program,
		})
	}

	return d, nil
}

// Names returns the derived field names in definition order.
func (d *DerivedFields) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.programs))
	for i, p := range d.programs {
		names[i] = p.name
	}
	return names
}

// Apply returns a new record with every derived field added. A field whose
// expression fails, or yields a non-scalar, is nil.
func (d *DerivedFields) Apply(record domain.Record) domain.Record {
	if d == nil || len(d.programs) == 0 {
		return record
	}

	fields := record.Fields()
	activation := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		activation[k] = v
	}
	activation["record"] = fields

	derived := make(map[string]any, len(d.programs))
	for _, p := range d.programs {
		out, _, err := p.program.Eval(activation)
		if err != nil {
			slog.Debug("derived field evaluation failed",
				"field", p.name,
				"error", err,
			)
			derived[p.name] = nil
			continue
		}
		derived[p.name] = scalar(out.Value())
	}

	return record.With(derived)
}

// scalar narrows a CEL result to a record value.
func scalar(v any) any {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case string:
		return t
	case bool:
		return t
	default:
		return nil
	}
}
