package admin

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/tagmatch"
)

type matchOutput struct {
	Text        string                `json:"text"`
	Corrections []tagmatch.Correction `json:"corrections,omitempty"`
	tagmatch.Result
	Candidates []model.Clip `json:"candidates"`
}

func newMatchCmd(g *globalFlags) *cobra.Command {
	var (
		stem     bool
		phonetic bool
	)

	cmd := &cobra.Command{
		Use:   "match TEXT...",
		Short: "Show which tags and clips a transcription would match",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			clips, err := s.AllClips(cmd.Context())
			if err != nil {
				return err
			}

			vocabulary := tagmatch.Vocabulary(clips)
			out := matchOutput{Text: strings.Join(args, " "), Candidates: []model.Clip{}}

			if phonetic {
				out.Text, out.Corrections = tagmatch.NewPhoneticCorrector().Correct(out.Text, vocabulary)
			}

			out.Result = tagmatch.Match(out.Text, vocabulary, stem)

			if out.Matched() {
				out.Candidates = tagmatch.Candidates(clips, out.Tags, stem)
			}

			return g.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				for _, c := range out.Corrections {
					fmt.Fprintf(w, "corrected %q to %q (%.2f)\n", c.Original, c.Corrected, c.Confidence)
				}

				if !out.Matched() {
					fmt.Fprintln(w, "no tags matched")
					return
				}

				fmt.Fprintf(w, "matched tags: %s\n", strings.Join(out.Tags, ", "))
				printClips(w, out.Candidates)
			})
		},
	}

	cmd.Flags().BoolVar(&stem, "stem", false, "match word stems")
	cmd.Flags().BoolVar(&phonetic, "phonetic", false, "correct misheard tags phonetically before matching")

	return cmd
}
