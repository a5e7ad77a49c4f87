// Package validate checks generator documents against the per-stage
// contracts before any of their content reaches game state.
//
// Validation runs in two passes. The structural walk checks presence, types,
// list lengths and the cross-field rules, and reports every finding with a
// "$."-rooted path. When the walk finds nothing, the stage's JSON Schema is
// applied for value bounds and enumerations. Neither pass panics or returns
// an error: the returned Violations are the only signal.
package validate

import (
	"embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tatianab/devil-deal/internal/models"
)

// Flaw count bounds for offer bundles.
const (
	MinFlaws = 4
	MaxFlaws = 6
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Violation is one path-qualified finding.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// Violations is the result of a validation run. Empty means acceptable.
type Violations []Violation

// Strings renders each violation as "path: message".
func (vs Violations) Strings() []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func (vs Violations) String() string {
	return strings.Join(vs.Strings(), "\n")
}

// Mentions reports whether any violation sits at or below path.
func (vs Violations) Mentions(path string) bool {
	for _, v := range vs {
		if v.Path == path || strings.HasPrefix(v.Path, path+".") || strings.HasPrefix(v.Path, path+"[") {
			return true
		}
	}
	return false
}

// Validator holds the compiled stage schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[models.Stage]*jsonschema.Schema
	sources map[models.Stage]string
}

// New compiles the embedded stage schemas.
func New() (*Validator, error) {
	v := &Validator{
		schemas: make(map[models.Stage]*jsonschema.Schema),
		sources: make(map[models.Stage]string),
	}
	for _, stage := range models.Stages {
		name := "schemas/" + string(stage) + ".json"
		src, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		sch, err := jsonschema.CompileString(name, string(src))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[stage] = sch
		v.sources[stage] = string(src)
	}
	return v, nil
}

// SchemaText returns the JSON Schema document for a stage, for embedding in
// generator requests.
func (v *Validator) SchemaText(stage models.Stage) string {
	return v.sources[stage]
}

// Validate checks doc, a value decoded from JSON, against stage.
func (v *Validator) Validate(stage models.Stage, doc any) Violations {
	w := &walker{}
	switch stage {
	case models.StageOffer:
		w.offerBundle(doc)
	case models.StageNegotiate:
		w.negotiation(doc)
	case models.StageEvent:
		w.event(doc)
	default:
		w.fail("$", "unknown stage %q", stage)
		return w.out
	}
	if len(w.out) > 0 {
		return w.out
	}
	if sch, ok := v.schemas[stage]; ok {
		return schemaViolations(sch, doc)
	}
	return nil
}
