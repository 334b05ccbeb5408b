// Package admin implements the sobub-admin commands that operate directly
// on the store and the clip library.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgoltzsche/sobub/internal/cli"
	"github.com/mgoltzsche/sobub/internal/library"
	"github.com/mgoltzsche/sobub/internal/store"
)

const (
	defaultDB       = "/var/lib/sobub/sobub.db"
	defaultAudioDir = "/var/lib/sobub/audio"
)

type globalFlags struct {
	db       string
	audioDir string
	format   string
}

// NewRootCmd returns the sobub-admin command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "sobub-admin",
		Short:         "Manage the SOBUB clip library and settings",
		Long:          "Manages the clips, tags and runtime settings of a SOBUB server by accessing its database and audio directory directly.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.db, "db", "d", "", "SQLite file path or postgres:// URL (default: $SOBUB_DB or "+defaultDB+")")
	cmd.PersistentFlags().StringVar(&g.audioDir, "audio-dir", "", "clip audio directory (default: $SOBUB_AUDIO_DIR or "+defaultAudioDir+")")
	cmd.PersistentFlags().StringVarP(&g.format, "format", "f", "text", "Output format: json or text")
	cmd.PersistentFlags().Var(cli.NewLogLevelFlag(), "log-level", "set the log level")
	cmd.PersistentFlags().Var(cli.NewLogFormatFlag(), "log-format", "set the log format (text, json)")

	cmd.AddCommand(
		newMemesCmd(g),
		newTagsCmd(g),
		newSettingsCmd(g),
		newMatchCmd(g),
	)

	return cmd
}

func (g *globalFlags) dbURL() string {
	return valueOrEnv(g.db, "SOBUB_DB", defaultDB)
}

func (g *globalFlags) openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, g.dbURL())
}

func (g *globalFlags) openLibrary(ctx context.Context) (*library.Library, error) {
	s, err := g.openStore(ctx)
	if err != nil {
		return nil, err
	}

	lib, err := library.New(valueOrEnv(g.audioDir, "SOBUB_AUDIO_DIR", defaultAudioDir), s)
	if err != nil {
		s.Close()
		return nil, err
	}

	return lib, nil
}

// print writes v as indented JSON or calls text to render it.
func (g *globalFlags) print(w io.Writer, v any, text func(w io.Writer)) error {
	switch g.format {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}

		_, err = fmt.Fprintln(w, string(b))
		return err
	case "text":
		text(w)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", g.format)
	}
}

func valueOrEnv(value, envVar, fallback string) string {
	if value != "" {
		return value
	}
	if env := os.Getenv(envVar); env != "" {
		return env
	}
	return fallback
}
