package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

const fileToolspec = `name: file
version: "5.44"
operations:
  - name: identify
    command: file ${flags} ${input}
    inputs: [{name: input}]
    parameters: [{name: flags, default: "-b"}]
  - name: copy
    command: cp ${src} ${dst}
    inputs: [{name: src}]
    outputs: [{name: dst}]
`

func writeSpec(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestBindFillsDefaultsAndReportsUnknown(t *testing.T) {
	op := &Operation{
		Name:       "copy",
		Command:    "cp ${src} ${dst}",
		Inputs:     []Param{{Name: "src"}},
		Outputs:    []Param{{Name: "dst", Default: "out.txt"}},
		Parameters: []Param{{Name: "mode", Default: "fast"}},
	}

	b := op.Bind(map[string]string{"src": "/in", "mode": "slow", "zeta": "1", "alpha": "2"})
	require.Equal(t, map[string]string{"src": "/in"}, b.Inputs)
	require.Equal(t, map[string]string{"dst": "out.txt"}, b.Outputs)
	require.Equal(t, map[string]string{"mode": "slow"}, b.Others)
	require.Equal(t, []string{"alpha", "zeta"}, b.Unknown)
	require.Len(t, b.All(), 3)
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	op := &Operation{Name: "copy", Command: "cp ${src} ${dst}", Inputs: []Param{{Name: "src"}}, Outputs: []Param{{Name: "dst"}}}

	rendered, err := op.Render("file", op.Bind(map[string]string{"src": "a", "dst": "b"}))
	require.NoError(t, err)
	require.Equal(t, "cp a b", rendered)
}

func TestRenderRejectsUnresolvedPlaceholder(t *testing.T) {
	op := &Operation{Name: "copy", Command: "cp ${src} ${nowhere}", Inputs: []Param{{Name: "src"}}}

	_, err := op.Render("file", op.Bind(map[string]string{"src": "a"}))
	var catErr *apperrors.CatalogError
	require.ErrorAs(t, err, &catErr)
	require.Equal(t, "copy", catErr.Operation)
	require.Contains(t, err.Error(), "nowhere")
}

func TestIsJava(t *testing.T) {
	require.True(t, (&Operation{Command: "java -jar tika.jar ${input}"}).IsJava())
	require.False(t, (&Operation{Command: "javac Foo.java"}).IsJava())
}

func TestRepositoryLoadsToolspecs(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "file.yaml", fileToolspec)
	writeSpec(t, dir, "text.yml", "operations:\n  - name: upper\n    command: tr a-z A-Z\n")
	writeSpec(t, dir, "README.md", "ignored")

	repo, err := NewRepository(dir, logger.Nop())
	require.NoError(t, err)

	tool, err := repo.Tool("file")
	require.NoError(t, err)
	require.Equal(t, "5.44", tool.Version)

	op, ok := tool.FindOperation("identify")
	require.True(t, ok)
	require.Equal(t, "-b", op.Bind(nil).Others["flags"])

	_, ok = tool.FindOperation("missing")
	require.False(t, ok)

	text, err := repo.Tool("text")
	require.NoError(t, err, "name falls back to the file name")
	require.Equal(t, "text", text.Name)

	names := make([]string, 0)
	for _, tl := range repo.List() {
		names = append(names, tl.Name)
	}
	require.Equal(t, []string{"file", "text"}, names)
}

func TestRepositoryUnknownToolIsNotFound(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), logger.Nop())
	require.NoError(t, err)

	_, err = repo.Tool("ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestValidateToolRejectsBadSpecs(t *testing.T) {
	cases := map[string]Tool{
		"no operations": {Name: "x"},
		"no command":    {Name: "x", Operations: []Operation{{Name: "a"}}},
		"bad param":     {Name: "x", Operations: []Operation{{Name: "a", Command: "c", Inputs: []Param{{Name: "has space"}}}}},
		"duplicate op":  {Name: "x", Operations: []Operation{{Name: "a", Command: "c"}, {Name: "a", Command: "d"}}},
		"shared name": {Name: "x", Operations: []Operation{{
			Name: "a", Command: "c", Inputs: []Param{{Name: "p"}}, Parameters: []Param{{Name: "p"}},
		}}},
	}

	for name, tool := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateTool(&tool)
			var valErr *apperrors.ValidationError
			require.ErrorAs(t, err, &valErr)
		})
	}
}

func TestRepositoryRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "bad.yaml", "operations: [unclosed")

	_, err := NewRepository(dir, logger.Nop())
	var parseErr *apperrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestGitSourceClonesAndUpdates(t *testing.T) {
	source := initSpecRepo(t)
	dest := filepath.Join(t.TempDir(), "cache", "toolspecs")

	src := &GitSource{URL: source, Destination: dest, SubDir: "specs"}
	repo, err := src.Load(context.Background(), logger.Nop())
	require.NoError(t, err)

	_, err = repo.Tool("file")
	require.NoError(t, err)

	// second sync reuses the clone
	dir, err := src.Sync(context.Background(), logger.Nop())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "specs"), dir)
}

func TestGitSourceReplacesForeignDirectory(t *testing.T) {
	source := initSpecRepo(t)
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale"), []byte("x"), 0o644))

	src := &GitSource{URL: source, Destination: dest, SubDir: "specs"}
	_, err := src.Sync(context.Background(), logger.Nop())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest, "stale"))
	require.True(t, os.IsNotExist(err))
}

func initSpecRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "specs"), 0o755))
	writeSpec(t, filepath.Join(dir, "specs"), "file.yaml", fileToolspec)
	_, err = wt.Add("specs/file.yaml")
	require.NoError(t, err)

	_, err = wt.Commit("add file toolspec", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "toolweave",
			Email: "toolweave@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir
}
