package admin

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mgoltzsche/sobub/internal/settings"
)

func newSettingsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change the runtime settings",
	}

	get := &cobra.Command{
		Use:   "get [KEY]",
		Short: "Print all settings or the given one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			current, err := settings.Load(cmd.Context(), s)
			if err != nil {
				return err
			}

			values := current.Map()

			if len(args) == 1 {
				value, ok := values[args[0]]
				if !ok {
					return fmt.Errorf("%w: unknown setting %q", settings.ErrInvalid, args[0])
				}

				fmt.Fprintln(cmd.OutOrStdout(), value)

				return nil
			}

			return g.print(cmd.OutOrStdout(), current, func(w io.Writer) {
				keys := make([]string, 0, len(values))
				for k := range values {
					keys = append(keys, k)
				}
				slices.Sort(keys)

				for _, k := range keys {
					fmt.Fprintf(w, "%s=%s\n", k, values[k])
				}
			})
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting. Running servers apply it within their sync interval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := settings.ParseUpdate(args[0], args[1])
			if err != nil {
				return err
			}

			s, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			err = update.Save(cmd.Context(), s)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], args[1])

			return nil
		},
	}

	cmd.AddCommand(get, set)

	return cmd
}
