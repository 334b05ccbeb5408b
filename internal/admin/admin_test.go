package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgoltzsche/sobub/internal/model"
)

type testEnv struct {
	db       string
	audioDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{
		db:       filepath.Join(dir, "sobub.db"),
		audioDir: filepath.Join(dir, "audio"),
	}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", e.db, "--audio-dir", e.audioDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func writeMP3(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, append([]byte("ID3"), make([]byte, 64)...), 0o644))
	return path
}

func TestMemesCommands(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "memes", "add", writeMP3(t, "goal.mp3"), "--tags", "goal, football")
	require.Contains(t, out, "goal.mp3")
	env.mustRun(t, "memes", "add", writeMP3(t, "boo.mp3"), "-t", "boo")

	_, err := env.run(t, "memes", "add", writeMP3(t, "none.mp3"), "--tags", " ")
	require.Error(t, err)

	out = env.mustRun(t, "--format", "json", "memes", "list")
	var clips []model.Clip
	require.NoError(t, json.Unmarshal([]byte(out), &clips))
	require.Len(t, clips, 2)
	require.Equal(t, "boo.mp3", clips[0].Filename)

	out = env.mustRun(t, "memes", "tag", "1", "goal,penalty")
	require.Contains(t, out, "goal, penalty")

	out = env.mustRun(t, "tags")
	require.Equal(t, "boo\ngoal\npenalty\n", out)

	out = env.mustRun(t, "memes", "rm", "2")
	require.Equal(t, "deleted clip 2\n", out)
	_, err = os.Stat(filepath.Join(env.audioDir, "boo.mp3"))
	require.True(t, os.IsNotExist(err), "audio file should be deleted")

	_, err = env.run(t, "memes", "rm", "2")
	require.Error(t, err)
	_, err = env.run(t, "memes", "tag", "x", "goal")
	require.Error(t, err)
}

func TestSettingsCommands(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, "180\n", env.mustRun(t, "settings", "get", "cooldown_seconds"))

	env.mustRun(t, "settings", "set", "cooldown_seconds", "30")
	require.Equal(t, "30\n", env.mustRun(t, "settings", "get", "cooldown_seconds"))
	require.Contains(t, env.mustRun(t, "settings", "get"), "cooldown_seconds=30\n")

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"out of range", []string{"settings", "set", "trigger_probability", "101"}},
		{"not a number", []string{"settings", "set", "cooldown_seconds", "ten"}},
		{"unknown key", []string{"settings", "set", "volume", "3"}},
		{"get unknown key", []string{"settings", "get", "volume"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.run(t, tc.args...)
			require.Error(t, err)
		})
	}
}

func TestMatchCommand(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "memes", "add", writeMP3(t, "goal.mp3"), "--tags", "goal")
	env.mustRun(t, "memes", "add", writeMP3(t, "party.mp3"), "--tags", "party time")

	out := env.mustRun(t, "match", "what", "a", "goal")
	require.Contains(t, out, "matched tags: goal\n")
	require.Contains(t, out, "goal.mp3")

	require.Equal(t, "no tags matched\n", env.mustRun(t, "match", "nothing here"))

	out = env.mustRun(t, "--format", "json", "match", "it's PARTY time")
	var result matchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, []string{"party time"}, result.Tags)
	require.Len(t, result.Candidates, 1)
	require.Equal(t, "party.mp3", result.Candidates[0].Filename)
}
