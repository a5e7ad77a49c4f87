// Package engine turns generator text into validated stage documents.
//
// The Orchestrator runs a bounded attempt loop per stage: call the
// generator, extract and validate the JSON object, ask for one repair when
// validation fails, back off on rate limits, and give up with a
// *StageFailure once the attempt budget is spent.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/validate"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

var (
	// ErrRateLimited marks a generator response that asked us to slow down.
	ErrRateLimited = errors.New("generator rate limited")
	// ErrNotConfigured means no generator is available at all. The
	// Orchestrator stops on it without spending further attempts.
	ErrNotConfigured = errors.New("generator not configured")
)

// Request is one call to a generator.
type Request struct {
	Stage  models.Stage
	System string
	Prompt string
}

// Generator produces raw text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// IsRateLimited reports whether err is a rate-limit signal from any
// provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"429", "RESOURCE_EXHAUSTED", "ResourceExhausted", "Resource exhausted"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// StageFailure is returned once a stage exhausts its attempts. It holds the
// state of the last attempt only.
type StageFailure struct {
	Stage      models.Stage
	Attempts   int
	LastRaw    string
	Violations validate.Violations
	Err        error
}

func (f *StageFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s failed after %d attempt(s)", f.Stage, f.Attempts)
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	for _, v := range f.Violations {
		b.WriteString("\n")
		b.WriteString(v.String())
	}
	return b.String()
}

func (f *StageFailure) Unwrap() error {
	return f.Err
}

// Options tunes the attempt loop. Zero values take the defaults.
type Options struct {
	MaxAttempts int
	// BackoffBase is the rate-limit wait before the second attempt; it
	// doubles with each attempt.
	BackoffBase time.Duration
	RetryDelay  time.Duration
	RepairDelay time.Duration
	CallTimeout time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the standard attempt schedule.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BackoffBase: 3 * time.Second,
		RetryDelay:  time.Second,
		RepairDelay: 500 * time.Millisecond,
		CallTimeout: 60 * time.Second,
		Sleep:       sleep,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = d.BackoffBase
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.RepairDelay <= 0 {
		o.RepairDelay = d.RepairDelay
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.Sleep == nil {
		o.Sleep = d.Sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Orchestrator runs stage requests against one Generator.
type Orchestrator struct {
	gen       Generator
	validator *validate.Validator
	logger    *zap.Logger
	opts      Options
}

// New returns an Orchestrator. A nil logger discards output.
func New(gen Generator, v *validate.Validator, logger *zap.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gen:       gen,
		validator: v,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// Document is a validated stage document.
type Document struct {
	Stage models.Stage
	// Raw is the extracted JSON text.
	Raw      string
	Value    any
	Repaired bool
	Attempt  int
}

// Decode unmarshals the document into v.
func (d *Document) Decode(v any) error {
	return json.Unmarshal([]byte(d.Raw), v)
}

// ExtractJSON returns the text from the first '{' to the last '}'.
func ExtractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// parse extracts and decodes raw. A failure is reported as a violation so it
// flows through the same repair path as a schema problem.
func (o *Orchestrator) parse(stage models.Stage, raw string) (string, any, validate.Violations) {
	text, ok := ExtractJSON(raw)
	if !ok {
		return raw, nil, validate.Violations{{Path: "$", Message: "no JSON object found in response"}}
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return text, nil, validate.Violations{{Path: "$", Message: "invalid JSON: " + err.Error()}}
	}
	return text, value, o.validator.Validate(stage, value)
}

func (o *Orchestrator) call(ctx context.Context, stage models.Stage, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	return o.gen.Generate(ctx, Request{Stage: stage, System: systemPrompt, Prompt: prompt})
}

// RequestStage obtains a valid document for stage or returns a
// *StageFailure. Other errors mean the request could not be built.
func (o *Orchestrator) RequestStage(ctx context.Context, stage models.Stage, args Args) (*Document, error) {
	schema := o.validator.SchemaText(stage)
	prompt, err := renderStage(stage, args, schema)
	if err != nil {
		return nil, err
	}

	log := o.logger.With(zap.String("stage", string(stage)))
	failure := &StageFailure{Stage: stage}
	wait := time.Duration(0)

	for attempt := 0; attempt < o.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			log.Info("retrying stage", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
			if err := o.opts.Sleep(ctx, wait); err != nil {
				failure.Err = err
				return nil, failure
			}
		}
		failure.Attempts = attempt + 1
		wait = o.opts.RetryDelay

		raw, err := o.call(ctx, stage, prompt)
		if err != nil {
			failure.LastRaw, failure.Violations, failure.Err = "", nil, err
			if stop := o.transportFailure(ctx, log, attempt, err, &wait); stop {
				return nil, failure
			}
			continue
		}

		text, value, vs := o.parse(stage, raw)
		if len(vs) == 0 {
			return &Document{Stage: stage, Raw: text, Value: value, Attempt: attempt + 1}, nil
		}
		failure.LastRaw, failure.Violations, failure.Err = text, vs, nil
		log.Warn("stage document invalid", zap.Int("attempt", attempt+1), zap.Strings("violations", vs.Strings()))

		if err := o.opts.Sleep(ctx, o.opts.RepairDelay); err != nil {
			failure.Err = err
			return nil, failure
		}
		repairPrompt, err := renderRepair(stage, text, vs, schema)
		if err != nil {
			return nil, err
		}
		raw, err = o.call(ctx, models.StageRepair, repairPrompt)
		if err != nil {
			failure.LastRaw, failure.Violations, failure.Err = "", nil, err
			if stop := o.transportFailure(ctx, log, attempt, err, &wait); stop {
				return nil, failure
			}
			continue
		}

		text, value, vs = o.parse(stage, raw)
		if len(vs) == 0 {
			log.Info("stage document repaired", zap.Int("attempt", attempt+1))
			return &Document{Stage: stage, Raw: text, Value: value, Repaired: true, Attempt: attempt + 1}, nil
		}
		failure.LastRaw, failure.Violations, failure.Err = text, vs, nil
		log.Warn("repaired document invalid", zap.Int("attempt", attempt+1), zap.Strings("violations", vs.Strings()))
	}

	log.Error("stage failed", zap.Int("attempts", failure.Attempts), zap.Error(failure))
	return nil, failure
}

// transportFailure logs a failed call, sets the wait before the next
// attempt and reports whether the loop must stop.
func (o *Orchestrator) transportFailure(ctx context.Context, log *zap.Logger, attempt int, err error, wait *time.Duration) bool {
	switch {
	case errors.Is(err, ErrNotConfigured):
		log.Warn("generator not configured")
		return true
	case ctx.Err() != nil:
		log.Warn("stage cancelled", zap.Error(ctx.Err()))
		return true
	case IsRateLimited(err):
		*wait = o.opts.BackoffBase << attempt
		log.Warn("generator rate limited", zap.Int("attempt", attempt+1), zap.Duration("wait", *wait))
	default:
		log.Warn("generator call failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return false
}
