package collector

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Predicate is a compiled --where expression over a module. The expression
// sees one variable, module, a map with the keys id, specifier, parent,
// origin, category, package, load_ms, resolve_ms, exec_ms and effective_ms.
//
//	module.package == "lodash" || module.effective_ms > 50.0
type Predicate struct {
	expr string
	prg  cel.Program
}

// CompilePredicate type-checks expr. It must evaluate to a bool.
func CompilePredicate(expr string) (*Predicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("module", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid where expression %q: %w", expr, iss.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("where expression %q must be a boolean, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build where expression %q: %w", expr, err)
	}
	return &Predicate{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	return p.expr
}

// Match evaluates the predicate for m.
func (p *Predicate) Match(m timing.ModuleTiming, conv Conventions) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{"module": moduleVars(m, conv)})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q for %s: %w", p.expr, m.ResolvedIdentifier, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("where expression %q returned %T, want bool", p.expr, out.Value())
	}
	return b, nil
}

func moduleVars(m timing.ModuleTiming, conv Conventions) map[string]any {
	origin := conv.Categorize(m.ResolvedIdentifier)
	category := ""
	if origin == timing.OriginUser {
		category = string(CategorizeAppFile(m.ResolvedIdentifier))
	}
	pkg, ok := conv.ExtractPackageName(m.ResolvedIdentifier)
	if !ok {
		pkg = appPackage
	}
	exec := -1.0
	if m.ExecutionMs != nil {
		exec = *m.ExecutionMs
	}
	return map[string]any{
		"id":           m.ResolvedIdentifier,
		"specifier":    m.DisplaySpecifier(),
		"parent":       m.ParentIdentifier,
		"origin":       string(origin),
		"category":     category,
		"package":      pkg,
		"load_ms":      m.LoadDurationMs,
		"resolve_ms":   m.ResolveDurationMs,
		"exec_ms":      exec,
		"effective_ms": m.EffectiveTime(),
	}
}
