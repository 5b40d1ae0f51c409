// Package filter compiles named filter templates into parameterized SQL.
//
// A template is a SQL boolean expression with named placeholders such as
// "customer_name = :customer AND total > :min_total". Compilation replaces
// each placeholder with a positional marker and collects the bound values in
// marker order. Values never enter the SQL text.
//
// Lexical rules:
//   - a placeholder is ':' followed by [A-Za-z_][A-Za-z0-9_]*
//   - '::' is a Postgres cast and is copied verbatim
//   - text inside '...' string literals and "..." identifiers is copied verbatim
//   - '$n' positional markers are rejected, numbering belongs to the compiler
package filter

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnboundParameter is returned when a placeholder has no value under the
	// reject policy.
	ErrUnboundParameter = errors.New("unbound filter parameter")
	// ErrSyntax is returned for templates the lexer cannot accept.
	ErrSyntax = errors.New("filter syntax error")
	// ErrUnsupportedValue is returned for non-scalar parameter values.
	ErrUnsupportedValue = errors.New("unsupported filter parameter value")
)

// UnboundPolicy decides what happens when a placeholder has no value.
type UnboundPolicy int

const (
	// RejectUnbound fails compilation with ErrUnboundParameter.
	RejectUnbound UnboundPolicy = iota
	// DropUnbound discards the whole filter so only visibility applies.
	DropUnbound
)

// ParsePolicy maps the configuration spelling to a policy.
func ParsePolicy(s string) (UnboundPolicy, error) {
	switch s {
	case "", "reject":
		return RejectUnbound, nil
	case "drop":
		return DropUnbound, nil
	default:
		return RejectUnbound, fmt.Errorf("unknown unbound parameter policy %q", s)
	}
}

// Fragment is a compiled predicate. The zero number of markers is valid.
type Fragment struct {
	parts []string
	names []string
	args  []any
}

// SQL renders the fragment with Postgres markers numbered from first.
func (f *Fragment) SQL(first int) string {
	var b strings.Builder
	for i, part := range f.parts {
		b.WriteString(part)
		if i < len(f.args) {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(first + i))
		}
	}
	return b.String()
}

// Args returns bound values in marker order.
func (f *Fragment) Args() []any {
	out := make([]any, len(f.args))
	copy(out, f.args)
	return out
}

// Names returns placeholder names in marker order, repeats included. A nil
// fragment has none.
func (f *Fragment) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Compiler turns templates into fragments under a fixed unbound policy.
type Compiler struct {
	policy UnboundPolicy
}

func NewCompiler(policy UnboundPolicy) *Compiler {
	return &Compiler{policy: policy}
}

// Compile returns nil when expression or params is empty, meaning no filter
// applies. Under DropUnbound a template with any unbound placeholder also
// yields nil.
func (c *Compiler) Compile(expression string, params map[string]any) (*Fragment, error) {
	if strings.TrimSpace(expression) == "" || len(params) == 0 {
		return nil, nil
	}

	parts, names, err := scan(expression)
	if err != nil {
		return nil, err
	}

	var missing []string
	args := make([]any, 0, len(names))
	for _, name := range names {
		value, ok := params[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if err := checkScalar(name, value); err != nil {
			return nil, err
		}
		args = append(args, value)
	}

	if len(missing) > 0 {
		if c.policy == DropUnbound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnboundParameter, strings.Join(dedupe(missing), ", "))
	}

	return &Fragment{parts: parts, names: names, args: args}, nil
}

// scan splits the template around placeholders. len(parts) == len(names)+1.
func scan(expression string) ([]string, []string, error) {
	var (
		parts []string
		names []string
		cur   strings.Builder
	)

	for i := 0; i < len(expression); {
		ch := expression[i]
		switch {
		case (ch == 'E' || ch == 'e') && i+1 < len(expression) && expression[i+1] == '\'' &&
			(i == 0 || !isIdentPart(expression[i-1])):
			end, err := escapeStringEnd(expression, i+1)
			if err != nil {
				return nil, nil, err
			}
			cur.WriteString(expression[i:end])
			i = end

		case ch == '\'' || ch == '"':
			end, err := quotedEnd(expression, i)
			if err != nil {
				return nil, nil, err
			}
			cur.WriteString(expression[i:end])
			i = end

		case ch == '$' && i+1 < len(expression) && (expression[i+1] == '$' || isIdentStart(expression[i+1])):
			end, err := dollarQuotedEnd(expression, i)
			if err != nil {
				return nil, nil, err
			}
			cur.WriteString(expression[i:end])
			i = end

		case ch == '-' && i+1 < len(expression) && expression[i+1] == '-',
			ch == '/' && i+1 < len(expression) && expression[i+1] == '*':
			return nil, nil, fmt.Errorf("%w: comment at offset %d", ErrSyntax, i)

		case ch == ':' && i+1 < len(expression) && expression[i+1] == ':':
			cur.WriteString("::")
			i += 2

		case ch == ':' && i+1 < len(expression) && isIdentStart(expression[i+1]):
			j := i + 2
			for j < len(expression) && isIdentPart(expression[j]) {
				j++
			}
			parts = append(parts, cur.String())
			cur.Reset()
			names = append(names, expression[i+1:j])
			i = j

		case ch == '$' && i+1 < len(expression) && isDigit(expression[i+1]):
			return nil, nil, fmt.Errorf("%w: positional parameter at offset %d", ErrSyntax, i)

		default:
			cur.WriteByte(ch)
			i++
		}
	}

	parts = append(parts, cur.String())
	return parts, names, nil
}

// quotedEnd returns the index just past the literal starting at start.
// A doubled quote character inside the literal is an escaped quote.
func quotedEnd(s string, start int) (int, error) {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1, nil
	}
	return 0, fmt.Errorf("%w: unterminated %c literal at offset %d", ErrSyntax, quote, start)
}

// escapeStringEnd handles E'...' literals, where a backslash escapes the
// next character. start is the opening quote.
func escapeStringEnd(s string, start int) (int, error) {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\'':
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated escape string at offset %d", ErrSyntax, start-1)
}

// dollarQuotedEnd returns the index just past a $tag$...$tag$ literal.
func dollarQuotedEnd(s string, start int) (int, error) {
	j := start + 1
	for j < len(s) && s[j] != '$' {
		if !isIdentPart(s[j]) {
			return 0, fmt.Errorf("%w: malformed dollar quote at offset %d", ErrSyntax, start)
		}
		j++
	}
	if j >= len(s) {
		return 0, fmt.Errorf("%w: malformed dollar quote at offset %d", ErrSyntax, start)
	}
	tag := s[start : j+1]
	closing := strings.Index(s[j+1:], tag)
	if closing < 0 {
		return 0, fmt.Errorf("%w: unterminated dollar quote at offset %d", ErrSyntax, start)
	}
	return j + 1 + closing + len(tag), nil
}

func checkScalar(name string, value any) error {
	switch value.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time, *big.Int:
		return nil
	case fmt.Stringer:
		// json.Number, uuid.UUID and similar render to a scalar literal.
		return nil
	default:
		return fmt.Errorf("%w: %s has type %T", ErrUnsupportedValue, name, value)
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
