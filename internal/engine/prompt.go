package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/validate"
)

//go:embed prompts/system.txt
var systemPrompt string

//go:embed prompts/offer_generate.txt
var offerPrompt string

//go:embed prompts/negotiate.txt
var negotiatePrompt string

//go:embed prompts/event_generate.txt
var eventPrompt string

//go:embed prompts/repair_json.txt
var repairPrompt string

var prompts = map[models.Stage]*template.Template{
	models.StageOffer:     template.Must(template.New(string(models.StageOffer)).Parse(offerPrompt)),
	models.StageNegotiate: template.Must(template.New(string(models.StageNegotiate)).Parse(negotiatePrompt)),
	models.StageEvent:     template.Must(template.New(string(models.StageEvent)).Parse(eventPrompt)),
	models.StageRepair:    template.Must(template.New(string(models.StageRepair)).Parse(repairPrompt)),
}

// Args is the caller-supplied input for one stage request.
type Args struct {
	// Context is marshalled to indented JSON and shown to the generator.
	Context any
	// Negotiation only.
	Quote   string
	Explain string
	Counter string
}

type promptData struct {
	Stage      models.Stage
	Context    string
	Schema     string
	Quote      string
	Explain    string
	Counter    string
	MinFlaws   int
	MaxFlaws   int
	Raw        string
	Violations []string
}

// SystemPrompt returns the instruction sent with every request.
func SystemPrompt() string {
	return systemPrompt
}

func renderStage(stage models.Stage, args Args, schema string) (string, error) {
	tmpl, ok := prompts[stage]
	if !ok || stage == models.StageRepair {
		return "", fmt.Errorf("no prompt for stage %q", stage)
	}
	ctxJSON, err := json.MarshalIndent(args.Context, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s context: %w", stage, err)
	}
	return execute(tmpl, promptData{
		Stage:    stage,
		Context:  string(ctxJSON),
		Schema:   schema,
		Quote:    args.Quote,
		Explain:  args.Explain,
		Counter:  args.Counter,
		MinFlaws: validate.MinFlaws,
		MaxFlaws: validate.MaxFlaws,
	})
}

func renderRepair(stage models.Stage, raw string, vs validate.Violations, schema string) (string, error) {
	return execute(prompts[models.StageRepair], promptData{
		Stage:      stage,
		Schema:     schema,
		Raw:        raw,
		Violations: vs.Strings(),
	})
}

func execute(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
