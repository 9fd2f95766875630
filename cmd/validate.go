// -- cmd/validate.go --
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stepwise/internal/steps"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <steps-file>",
		Short: "Checks a step file without opening a browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := steps.Load(args[0])
			if err != nil {
				return err
			}
			name := seq.Name
			if name == "" {
				name = args[0]
			}
			cmd.Printf("%s: %d steps are valid.\n", name, len(seq.Steps))
			for i, d := range seq.Steps {
				title := d.Title
				if title == "" {
					title = d.Target
				}
				cmd.Printf("  %d. %-9s %s\n", i+1, d.Action, title)
			}
			return nil
		},
	}
}
