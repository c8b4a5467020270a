package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/medturn/portal/machine"
)

func diagramCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "diagram [machine...]",
		Short:     "Print PlantUML state diagrams for the portal machines",
		ValidArgs: machine.AllIDs,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if len(ids) == 0 {
				ids = machine.AllIDs
			}
			for _, id := range ids {
				if err := machine.Diagram(os.Stdout, id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
