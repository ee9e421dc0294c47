package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <document.json>",
	Short: "Check a proposal document against the validation rule set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read document")
		}

		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return eris.Wrap(err, "parse document")
		}

		rules, err := loadRules()
		if err != nil {
			return err
		}

		violations := schema.Validate(doc, rules)
		report := struct {
			Valid  bool                    `json:"valid"`
			Rules  int                     `json:"rules"`
			Errors []model.ValidationError `json:"errors,omitempty"`
		}{
			Valid:  len(violations) == 0,
			Rules:  len(rules.Rules),
			Errors: violations,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}

		if !report.Valid {
			return eris.Errorf("document failed %d validation checks", len(violations))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
