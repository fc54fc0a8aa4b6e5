package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

func NewValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and document type registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateSetup(cmd, a); err != nil {
				return err
			}
			success(cmd, "Configuration and document types are valid")
			return nil
		},
	}
}

// validateSetup reports every configuration problem and checks each
// document type against the generators and keyword names available.
func validateSetup(cmd *cobra.Command, a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	problems := cfg.Validate()
	for _, p := range problems {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "  * %s\n", p.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d configuration problem(s)", len(problems))
	}

	t, err := a.keywordTranslator()
	if err != nil {
		return err
	}
	registry, err := a.documentTypes()
	if err != nil {
		return err
	}
	return registry.Validate(keywords.KnownNames, t)
}
