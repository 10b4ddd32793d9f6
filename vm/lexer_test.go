package vm

import (
	"strings"
	"testing"
)

func lexAll(t *testing.T, source string) []Token {
	t.Helper()
	l := NewLexer(source)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func lexTypes(t *testing.T, source string) []TokenType {
	t.Helper()
	tokens := lexAll(t, source)
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func expectTypes(t *testing.T, source string, want ...TokenType) {
	t.Helper()
	got := lexTypes(t, source)
	if len(got) != len(want) {
		t.Fatalf("%q: got %d tokens %v, want %d %v", source, len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%q token %d: got %s, want %s", source, i, got[i], want[i])
		}
	}
}

func TestLexPunctuation(t *testing.T) {
	expectTypes(t, "( ) [ ] { } , . .. ... ; : #",
		TokenLeftParen, TokenRightParen, TokenLeftBracket, TokenRightBracket,
		TokenLeftBrace, TokenRightBrace, TokenComma, TokenDot, TokenDotDot,
		TokenDotDotDot, TokenSemicolon, TokenColon, TokenHash, TokenEOF)
}

func TestLexOperators(t *testing.T) {
	expectTypes(t, "+ - * / % < > <= >= == != = ! ~ ? | || & && ^ << >>",
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenLt, TokenGt, TokenLtEq, TokenGtEq, TokenEqEq, TokenBangEq,
		TokenEq, TokenBang, TokenTilde, TokenQuestion, TokenPipe,
		TokenPipePipe, TokenAmp, TokenAmpAmp, TokenCaret, TokenLtLt,
		TokenGtGt, TokenEOF)
}

func TestLexKeywordsAndNames(t *testing.T) {
	expectTypes(t, "class construct is var foo _bar __baz",
		TokenClass, TokenConstruct, TokenIs, TokenVar, TokenName,
		TokenField, TokenStaticField, TokenEOF)

	tokens := lexAll(t, "foo _bar")
	if tokens[0].Content != "foo" {
		t.Errorf("name content: got %q", tokens[0].Content)
	}
	if tokens[1].Content != "_bar" {
		t.Errorf("field content: got %q", tokens[1].Content)
	}
}

func TestLexNumbers(t *testing.T) {
	cases := []struct {
		source string
		want   float64
	}{
		{"0", 0},
		{"42", 42},
		{"3.14", 3.14},
		{"1e3", 1000},
		{"1.5e-2", 0.015},
		{"0x10", 16},
		{"0xDEADBEEF", 3735928559},
	}
	for _, tc := range cases {
		tokens := lexAll(t, tc.source)
		if tokens[0].Type != TokenNumber {
			t.Errorf("%q: got %s, want NUMBER", tc.source, tokens[0].Type)
			continue
		}
		if tokens[0].Num != tc.want {
			t.Errorf("%q: got %g, want %g", tc.source, tokens[0].Num, tc.want)
		}
	}
}

func TestLexStrings(t *testing.T) {
	tokens := lexAll(t, `"hello\nworld"`)
	if tokens[0].Type != TokenString {
		t.Fatalf("got %s, want STRING", tokens[0].Type)
	}
	if tokens[0].Str != "hello\nworld" {
		t.Errorf("decoded: got %q", tokens[0].Str)
	}

	tokens = lexAll(t, `"A\x42"`)
	if tokens[0].Str != "AB" {
		t.Errorf("escapes: got %q", tokens[0].Str)
	}
}

func TestLexInterpolation(t *testing.T) {
	expectTypes(t, `"a%(b)c"`,
		TokenInterpolation, TokenName, TokenString, TokenEOF)

	tokens := lexAll(t, `"a%(b)c"`)
	if tokens[0].Str != "a" {
		t.Errorf("interpolation prefix: got %q", tokens[0].Str)
	}
	if tokens[2].Str != "c" {
		t.Errorf("interpolation suffix: got %q", tokens[2].Str)
	}
}

func TestLexInterpolationNestingLimit(t *testing.T) {
	// Eight levels is the ceiling; nine must error.
	source := `"%("%("%("%("%("%("%("%("%(1)")")")")")")")")"`
	tokens := lexAll(t, source)
	last := tokens[len(tokens)-1]
	if last.Type != TokenError {
		t.Errorf("nine nested interpolations: got %s, want ERROR", last.Type)
	}
	if !strings.Contains(last.Str, "nest") {
		t.Errorf("error message: got %q", last.Str)
	}
}

func TestLexSignificantNewlines(t *testing.T) {
	expectTypes(t, "a\nb",
		TokenName, TokenLine, TokenName, TokenEOF)
}

func TestLexComments(t *testing.T) {
	expectTypes(t, "a // line comment\nb",
		TokenName, TokenLine, TokenName, TokenEOF)
	expectTypes(t, "a /* block\ncomment */ b",
		TokenName, TokenName, TokenEOF)
	expectTypes(t, "a /* nested /* inner */ still */ b",
		TokenName, TokenName, TokenEOF)
}

func TestLexLineNumbers(t *testing.T) {
	tokens := lexAll(t, "a\nb\n\nc")
	wantLines := map[string]int{"a": 1, "b": 2, "c": 4}
	for _, tok := range tokens {
		if tok.Type != TokenName {
			continue
		}
		if want := wantLines[tok.Content]; tok.Line != want {
			t.Errorf("%q: line %d, want %d", tok.Content, tok.Line, want)
		}
	}
}

func TestLexUnterminatedString(t *testing.T) {
	tokens := lexAll(t, `"oops`)
	if tokens[len(tokens)-1].Type != TokenError {
		t.Error("unterminated string did not error")
	}
}
