package admin

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mgoltzsche/sobub/internal/library"
	"github.com/mgoltzsche/sobub/internal/model"
)

func newMemesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memes",
		Aliases: []string{"meme", "clips"},
		Short:   "Manage the clips",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all clips, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			clips, err := s.AllClips(cmd.Context())
			if err != nil {
				return err
			}

			return g.print(cmd.OutOrStdout(), clips, func(w io.Writer) {
				printClips(w, clips)
			})
		},
	}

	var tags string

	add := &cobra.Command{
		Use:   "add FILE",
		Short: "Add an mp3 or wav file to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio file: %w", err)
			}

			lib, err := g.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			defer lib.Store.Close()

			clip, err := lib.Add(cmd.Context(), filepath.Base(args[0]), data, library.ParseTags(tags))
			if err != nil {
				return err
			}

			return g.print(cmd.OutOrStdout(), clip, func(w io.Writer) {
				printClips(w, []model.Clip{*clip})
			})
		},
	}
	add.Flags().StringVarP(&tags, "tags", "t", "", "comma separated tags (required)")
	_ = add.MarkFlagRequired("tags")

	tag := &cobra.Command{
		Use:   "tag ID TAGS",
		Short: "Replace the tags of a clip with the given comma separated tags",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			lib, err := g.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			defer lib.Store.Close()

			clip, err := lib.UpdateTags(cmd.Context(), id, library.ParseTags(args[1]))
			if err != nil {
				return err
			}

			return g.print(cmd.OutOrStdout(), clip, func(w io.Writer) {
				printClips(w, []model.Clip{*clip})
			})
		},
	}

	rm := &cobra.Command{
		Use:     "rm ID...",
		Aliases: []string{"delete"},
		Short:   "Delete clips and their audio files",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := g.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			defer lib.Store.Close()

			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}

				err = lib.Delete(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("delete clip %d: %w", id, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "deleted clip %d\n", id)
			}

			return nil
		},
	}

	cmd.AddCommand(list, add, tag, rm)

	return cmd
}

func newTagsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the tags of all clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tags, err := s.Tags(cmd.Context())
			if err != nil {
				return err
			}

			return g.print(cmd.OutOrStdout(), tags, func(w io.Writer) {
				for _, t := range tags {
					fmt.Fprintln(w, t)
				}
			})
		},
	}
}

func printClips(w io.Writer, clips []model.Clip) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tPLAYS\tTAGS")
	for _, c := range clips {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.ID, c.Filename, c.PlayCount, strings.Join(c.Tags, ", "))
	}
	tw.Flush()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid clip id %q", s)
	}

	return id, nil
}
