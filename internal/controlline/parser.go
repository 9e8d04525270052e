package controlline

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenPipe
	tokenRedirect
)

type token struct {
	kind  tokenKind
	value string
	col   int
}

// PipedParser parses the piped-args control line syntax:
//
//	[ref >] tool action --name=value ... [| tool action ...] [> ref]
//
// Values may be wrapped in single or double quotes. Inside double quotes a
// backslash escapes the next character.
type PipedParser struct{}

// NewPipedParser returns a parser for the piped-args syntax.
func NewPipedParser() *PipedParser {
	return &PipedParser{}
}

var _ Parser = (*PipedParser)(nil)

// Parse implements Parser.
func (p *PipedParser) Parse(line Line) (*Parsed, error) {
	tokens, err := tokenize(line.Number, line.Text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, apperrors.NewLineParseError(line.Number, 0, "empty control line")
	}

	parsed := &Parsed{}

	if len(tokens) >= 2 && tokens[0].kind == tokenWord && tokens[1].kind == tokenRedirect {
		parsed.Stdin = tokens[0].value
		tokens = tokens[2:]
	}

	if n := len(tokens); n >= 2 && tokens[n-2].kind == tokenRedirect {
		if tokens[n-1].kind != tokenWord {
			return nil, apperrors.NewLineParseError(line.Number, tokens[n-1].col, "redirect target must be a file reference")
		}
		parsed.Stdout = tokens[n-1].value
		tokens = tokens[:n-2]
	}

	var segment []token
	flush := func(col int) error {
		cmd, err := parseCommand(line.Number, col, segment)
		if err != nil {
			return err
		}
		parsed.Commands = append(parsed.Commands, cmd)
		segment = nil
		return nil
	}

	for _, tok := range tokens {
		switch tok.kind {
		case tokenRedirect:
			return nil, apperrors.NewLineParseError(line.Number, tok.col, "unexpected '>'")
		case tokenPipe:
			if err := flush(tok.col); err != nil {
				return nil, err
			}
		default:
			segment = append(segment, tok)
		}
	}
	if err := flush(len(line.Text) + 1); err != nil {
		return nil, err
	}

	return parsed, nil
}

func parseCommand(lineNum, col int, tokens []token) (Command, error) {
	if len(tokens) < 2 {
		return Command{}, apperrors.NewLineParseError(lineNum, col, "command needs a tool and an action")
	}

	cmd := Command{
		Tool:   tokens[0].value,
		Action: tokens[1].value,
		Params: make(map[string]string, len(tokens)-2),
	}

	for _, tok := range tokens[2:] {
		if !strings.HasPrefix(tok.value, "--") {
			return Command{}, apperrors.NewLineParseError(lineNum, tok.col, fmt.Sprintf("expected --name=value, got %q", tok.value))
		}
		name, value, ok := strings.Cut(tok.value[2:], "=")
		if !ok || name == "" {
			return Command{}, apperrors.NewLineParseError(lineNum, tok.col, fmt.Sprintf("expected --name=value, got %q", tok.value))
		}
		if _, dup := cmd.Params[name]; dup {
			return Command{}, apperrors.NewLineParseError(lineNum, tok.col, fmt.Sprintf("duplicate parameter %q", name))
		}
		cmd.Params[name] = value
	}

	return cmd, nil
}

func tokenize(lineNum int, text string) ([]token, error) {
	var tokens []token
	runes := []rune(text)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '|':
			tokens = append(tokens, token{kind: tokenPipe, value: "|", col: i + 1})
			i++
		case r == '>':
			tokens = append(tokens, token{kind: tokenRedirect, value: ">", col: i + 1})
			i++
		default:
			start := i
			var b strings.Builder
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '|' && runes[i] != '>' {
				c := runes[i]
				if c != '"' && c != '\'' {
					b.WriteRune(c)
					i++
					continue
				}
				end, err := readQuoted(runes, i, &b)
				if err != nil {
					return nil, apperrors.NewLineParseError(lineNum, i+1, err.Error())
				}
				i = end
			}
			tokens = append(tokens, token{kind: tokenWord, value: b.String(), col: start + 1})
		}
	}

	return tokens, nil
}

// readQuoted copies the quoted section starting at runes[start] into b and
// returns the index just past the closing quote.
func readQuoted(runes []rune, start int, b *strings.Builder) (int, error) {
	quote := runes[start]
	for i := start + 1; i < len(runes); i++ {
		c := runes[i]
		if quote == '"' && c == '\\' && i+1 < len(runes) {
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		if c == quote {
			return i + 1, nil
		}
		b.WriteRune(c)
	}
	return 0, fmt.Errorf("unterminated %c quote", quote)
}
