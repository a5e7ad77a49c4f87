package validate

import (
	"errors"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaViolations applies sch to doc and flattens the error tree into one
// violation per failing leaf keyword.
func schemaViolations(sch *jsonschema.Schema, doc any) Violations {
	err := sch.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return Violations{{Path: "$", Message: err.Error()}}
	}
	var out Violations
	collectLeaves(verr, &out)
	if len(out) == 0 {
		out = append(out, Violation{Path: pointerPath(verr.InstanceLocation), Message: verr.Message})
	}
	return out
}

func collectLeaves(e *jsonschema.ValidationError, out *Violations) {
	if len(e.Causes) == 0 {
		*out = append(*out, Violation{Path: pointerPath(e.InstanceLocation), Message: e.Message})
		return
	}
	for _, c := range e.Causes {
		collectLeaves(c, out)
	}
}

// pointerPath turns a JSON pointer such as /loopholes/0/severity into
// $.loopholes[0].severity.
func pointerPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	if ptr == "" || ptr == "/" {
		return "$"
	}
	var b strings.Builder
	b.WriteString("$")
	for _, tok := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		b.WriteString("." + tok)
	}
	return b.String()
}
