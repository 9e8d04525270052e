package controlline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

func parse(t *testing.T, text string) (*Parsed, error) {
	t.Helper()
	return NewPipedParser().Parse(Line{Number: 1, Text: text})
}

func TestParseSingleCommand(t *testing.T) {
	parsed, err := parse(t, `file identify --input="hdfs://nn/data/a b.txt" --flags=-b`)
	require.NoError(t, err)
	require.Len(t, parsed.Commands, 1)
	require.Equal(t, "file", parsed.Commands[0].Tool)
	require.Equal(t, "identify", parsed.Commands[0].Action)
	require.Equal(t, map[string]string{"input": "hdfs://nn/data/a b.txt", "flags": "-b"}, parsed.Commands[0].Params)
	require.Empty(t, parsed.Stdin)
	require.Empty(t, parsed.Stdout)
}

func TestParseStdinRedirect(t *testing.T) {
	parsed, err := parse(t, `"hdfs://inputfile1" > file identify-stdin`)
	require.NoError(t, err)
	require.Equal(t, "hdfs://inputfile1", parsed.Stdin)
	require.Len(t, parsed.Commands, 1)
	require.Equal(t, "identify-stdin", parsed.Commands[0].Action)
}

func TestParsePipelineWithStdout(t *testing.T) {
	parsed, err := parse(t, `/in.txt > text upper | text count --unit='lines' > "/out/result.txt"`)
	require.NoError(t, err)
	require.Equal(t, "/in.txt", parsed.Stdin)
	require.Equal(t, "/out/result.txt", parsed.Stdout)
	require.Len(t, parsed.Commands, 2)
	require.Equal(t, "upper", parsed.Commands[0].Action)
	require.Equal(t, "lines", parsed.Commands[1].Params["unit"])
}

func TestParseEscapedQuotes(t *testing.T) {
	parsed, err := parse(t, `text echo --msg="say \"hi\""`)
	require.NoError(t, err)
	require.Equal(t, `say "hi"`, parsed.Commands[0].Params["msg"])
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":              "   ",
		"missing action":     "file",
		"bad param":          "file identify input=x",
		"param without '='":  "file identify --input",
		"duplicate param":    "file identify --a=1 --a=2",
		"unterminated quote": `file identify --input="oops`,
		"dangling pipe":      "file identify |",
		"stray redirect":     "file identify > a > b > c",
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parse(t, text)
			require.Error(t, err)
			var parseErr *apperrors.ParseError
			require.ErrorAs(t, err, &parseErr)
			require.Equal(t, 1, parseErr.Line)
		})
	}
}

func TestCommandStringRoundTrips(t *testing.T) {
	original := Command{Tool: "text", Action: "echo", Params: map[string]string{"msg": "two words", "n": "3"}}

	parsed, err := parse(t, original.String())
	require.NoError(t, err)
	require.Equal(t, original, parsed.Commands[0])
}

func TestScanTracksOffsetsAndSkipsBlankLines(t *testing.T) {
	input := "a x --i=1\r\n\n  \nb y --i=2\nc z"
	lines, err := ReadAll(strings.NewReader(input), 100)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.Equal(t, Line{Number: 1, Offset: 100, Text: "a x --i=1"}, lines[0])
	require.Equal(t, Line{Number: 4, Offset: 100 + 11 + 1 + 3, Text: "b y --i=2"}, lines[1])
	require.Equal(t, "c z", lines[2].Text)
	require.Equal(t, 5, lines[2].Number, "blank lines still advance the line number")
}
