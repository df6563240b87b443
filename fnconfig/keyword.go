package fnconfig

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

// Kind is the role of a configured node.
type Kind int

const (
	KindFn Kind = iota
	KindVar
	KindConst
	KindPoint
	KindMetric
	KindTask
)

// String returns the keyword token of the kind.
func (k Kind) String() string {
	switch k {
	case KindFn:
		return "fn"
	case KindVar:
		return "let"
	case KindConst:
		return "const"
	case KindPoint:
		return "point"
	case KindMetric:
		return "metric"
	case KindTask:
		return "task"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var kindTokens = map[string]Kind{
	"fn":     KindFn,
	"let":    KindVar,
	"const":  KindConst,
	"point":  KindPoint,
	"metric": KindMetric,
	"task":   KindTask,
}

// Keyword is one parsed configuration key:
//
//	[input-name] kind [type] [data]
type Keyword struct {
	Input string
	Kind  Kind
	// Type is meaningful only when Typed is true; "any" and an omitted
	// type leave Typed false.
	Type  point.Type
	Typed bool
	Data  string
}

// ParseKeyword parses a key such as "input1 fn Add", "let Var1",
// "const real 3.5" or "point int '/App/Load'". Kind and type tokens are
// case-insensitive. A string without a kind token yields
// errors.ErrUnknownKeyword; a kind token in the wrong place, an unknown
// type followed by extra data, or missing data yields
// errors.ErrMalformedKeyword.
func ParseKeyword(s string) (Keyword, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return Keyword{}, malformed(s, err.Error())
	}

	kindAt := -1
	for i, tok := range tokens {
		if tok.quoted {
			continue
		}
		if _, ok := kindTokens[strings.ToLower(tok.text)]; ok {
			kindAt = i
			break
		}
	}
	// an input may itself be named like a kind: "point point int /App/x"
	if kindAt == 0 && len(tokens) > 2 && !tokens[1].quoted {
		if _, ok := kindTokens[strings.ToLower(tokens[1].text)]; ok {
			kindAt = 1
		}
	}
	if kindAt < 0 {
		return Keyword{}, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownKeyword, s),
			"fnconfig", "ParseKeyword", "find kind")
	}
	if kindAt > 1 {
		return Keyword{}, malformed(s, "more than one token before kind")
	}

	kw := Keyword{Kind: kindTokens[strings.ToLower(tokens[kindAt].text)]}
	if kindAt == 1 {
		kw.Input = tokens[0].text
	}

	rest := tokens[kindAt+1:]
	if len(rest) > 0 && !rest[0].quoted {
		lower := strings.ToLower(rest[0].text)
		if lower == "any" {
			rest = rest[1:]
		} else if t, err := point.ParseType(lower); err == nil && len(rest) > 1 {
			kw.Type, kw.Typed = t, true
			rest = rest[1:]
		} else if err == nil && kw.Kind == KindConst {
			// "const int" without data: the literal comes from the value
			kw.Type, kw.Typed = t, true
			rest = rest[1:]
		}
	}

	switch len(rest) {
	case 0:
		if kw.Kind != KindConst {
			return Keyword{}, malformed(s, fmt.Sprintf("%s requires a name", kw.Kind))
		}
	case 1:
		kw.Data = rest[0].text
	default:
		return Keyword{}, malformed(s, fmt.Sprintf("unexpected tokens after %s data", kw.Kind))
	}

	return kw, nil
}

func malformed(s, reason string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %q: %s", errors.ErrMalformedKeyword, s, reason),
		"fnconfig", "ParseKeyword", "parse keyword")
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits on whitespace; single or double quotes group a token.
func tokenize(s string) ([]token, error) {
	var (
		tokens []token
		cur    strings.Builder
		quote  rune
		inTok  bool
		quoted bool
	)
	flush := func() {
		if inTok {
			tokens = append(tokens, token{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		inTok, quoted = false, false
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			if inTok && !quoted {
				return nil, fmt.Errorf("quote inside token")
			}
			quote, inTok, quoted = r, true, true
		case unicode.IsSpace(r):
			flush()
		default:
			if quoted {
				return nil, fmt.Errorf("text after closing quote")
			}
			cur.WriteRune(r)
			inTok = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return tokens, nil
}
