package expression

import (
	"fmt"
	"strconv"
	"strings"
)

const lookupFunc = "_ctx"

// functionAliases maps workflow function names onto the names registered with
// expr. contains, startsWith and endsWith are operators in expr, so calls to
// them must be renamed before parsing.
var functionAliases = map[string]string{
	"success":    "_success",
	"failure":    "_failure",
	"cancelled":  "_cancelled",
	"always":     "_always",
	"contains":   "_contains",
	"startsWith": "_startsWith",
	"endsWith":   "_endsWith",
	"format":     "_format",
	"join":       "_join",
	"toJSON":     "_toJSON",
	"fromJSON":   "_fromJSON",
}

var keywords = map[string]string{
	"true":       "true",
	"false":      "false",
	"null":       "nil",
	"nil":        "nil",
	"and":        "and",
	"or":         "or",
	"not":        "not",
	"in":         "in",
	"matches":    "matches",
	"contains":   "contains",
	"startsWith": "startsWith",
	"endsWith":   "endsWith",
}

// translate rewrites a workflow expression into expr syntax. Context property
// chains such as steps.build-app.outputs['tag'] become nil-safe lookups
// _ctx("steps", "build-app", "outputs", "tag"), and workflow functions are
// renamed to their registered aliases.
func translate(src string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end, err := skipString(src, i)
			if err != nil {
				return "", err
			}
			if c == '\'' {
				out.WriteString(strconv.Quote(strings.ReplaceAll(src[i+1:end-1], "''", "'")))
			} else {
				out.WriteString(src[i:end])
			}
			i = end
		case isDigit(c):
			j := i
			for j < len(src) && (isIdentChar(src[j]) || src[j] == '.') {
				j++
			}
			out.WriteString(src[i:j])
			i = j
		case c == '.' && lastNonSpace(out.String()) == ')' && i+1 < len(src) && isIdentStart(src[i+1]):
			j := scanIdent(src, i+1, false)
			out.WriteString("?.")
			out.WriteString(src[i+1 : j])
			i = j
		case isIdentStart(c):
			j := scanIdent(src, i, false)
			name := src[i:j]
			if k := skipSpaces(src, j); k < len(src) && src[k] == '(' {
				if alias, ok := functionAliases[name]; ok {
					name = alias
				}
				out.WriteString(name)
				i = j
				continue
			}
			if kw, ok := keywords[name]; ok {
				out.WriteString(kw)
				i = j
				continue
			}

			args := []string{strconv.Quote(name)}
			i = j
			for i < len(src) {
				if src[i] == '.' && i+1 < len(src) && isIdentStart(src[i+1]) {
					m := scanIdent(src, i+1, true)
					args = append(args, strconv.Quote(src[i+1:m]))
					i = m
					continue
				}
				if src[i] == '[' {
					end, err := matchBracket(src, i)
					if err != nil {
						return "", err
					}
					inner, err := translate(src[i+1 : end])
					if err != nil {
						return "", err
					}
					args = append(args, inner)
					i = end + 1
					continue
				}
				break
			}
			out.WriteString(lookupFunc)
			out.WriteByte('(')
			out.WriteString(strings.Join(args, ", "))
			out.WriteByte(')')
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

func skipString(src string, start int) (int, error) {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			if quote == '"' {
				i++
			}
		case quote:
			// workflow strings escape a single quote by doubling it
			if quote == '\'' && i+1 < len(src) && src[i+1] == '\'' {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string starting at offset %d", start)
}

func matchBracket(src string, start int) (int, error) {
	depth := 0
	for i := start; i < len(src); i++ {
		switch src[i] {
		case '\'', '"', '`':
			end, err := skipString(src, i)
			if err != nil {
				return 0, err
			}
			i = end - 1
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced '[' at offset %d", start)
}

func scanIdent(src string, start int, allowDash bool) int {
	j := start
	for j < len(src) && (isIdentChar(src[j]) || (allowDash && src[j] == '-')) {
		j++
	}
	return j
}

func skipSpaces(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

func lastNonSpace(s string) byte {
	s = strings.TrimRight(s, " \t\r\n")
	if s == "" {
		return 0
	}
	return s[len(s)-1]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }
