package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/models"
	"github.com/tatianab/devil-deal/internal/validate"
)

var errInvalidDocument = errors.New("document is invalid")

func newValidateCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "validate --stage <stage> <file>",
		Short: "Check a stage document against its schema",
		Long: `Reads a generator response from file ("-" for stdin), extracts its JSON
object and prints every violation, one per line.

Stages: offer_generate, negotiate, event_generate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			vs, err := validateDocument(models.Stage(stage), string(data))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(vs) == 0 {
				fmt.Fprintln(out, "ok")
				return nil
			}
			for _, v := range vs {
				fmt.Fprintln(out, v)
			}
			return fmt.Errorf("%d violation(s): %w", len(vs), errInvalidDocument)
		},
	}
	cmd.Flags().StringVarP(&stage, "stage", "s", "", "stage the document answers")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func validateDocument(stage models.Stage, raw string) (validate.Violations, error) {
	known := false
	for _, s := range models.Stages {
		known = known || s == stage
	}
	if !known {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	v, err := validate.New()
	if err != nil {
		return nil, err
	}
	text, ok := engine.ExtractJSON(raw)
	if !ok {
		return validate.Violations{{Path: "$", Message: "no JSON object found in response"}}, nil
	}
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return validate.Violations{{Path: "$", Message: "invalid JSON: " + err.Error()}}, nil
	}
	return v.Validate(stage, doc), nil
}
