package cli

import (
	"github.com/aussiebroadwan/todo/internal/tui"
	"github.com/spf13/cobra"
)

func (rt *runtime) tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and edit your todos interactively",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), a.Todos())
		},
	}
}
