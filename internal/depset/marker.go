// SPDX-License-Identifier: MPL-2.0

package depset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMarker is returned when an environment marker cannot be parsed.
var ErrInvalidMarker = errors.New("invalid environment marker")

// ImageEnvironment holds the marker variables of the image the sync runs in.
// Variables that are missing (python_version, platform_machine, ...) are
// treated as unknown and any comparison on them holds.
var ImageEnvironment = map[string]string{
	"sys_platform":                   "linux",
	"platform_system":                "Linux",
	"os_name":                        "posix",
	"platform_python_implementation": "CPython",
	"implementation_name":            "cpython",
}

type (
	markerParser struct {
		toks []markerToken
		pos  int
		env  map[string]string
	}

	markerToken struct {
		text   string
		quoted bool
	}
)

// MarkerHolds reports whether marker can be true in env. An empty marker
// always holds. "extra" comparisons never hold: extras are not synced.
func MarkerHolds(marker string, env map[string]string) (bool, error) {
	if strings.TrimSpace(marker) == "" {
		return true, nil
	}
	toks, err := tokenizeMarker(marker)
	if err != nil {
		return false, err
	}
	p := &markerParser{toks: toks, env: env}
	ok, err := p.or()
	if err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrInvalidMarker, marker, err)
	}
	if p.pos != len(p.toks) {
		return false, fmt.Errorf("%w: %q: unexpected %q", ErrInvalidMarker, marker, p.toks[p.pos].text)
	}
	return ok, nil
}

func tokenizeMarker(s string) ([]markerToken, error) {
	var toks []markerToken
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, markerToken{text: string(c)})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unterminated string", ErrInvalidMarker, s)
			}
			toks = append(toks, markerToken{text: s[i+1 : i+1+end], quoted: true})
			i += end + 2
		case strings.ContainsRune("=!<>~", rune(c)):
			j := i + 1
			for j < len(s) && strings.ContainsRune("=!<>~", rune(s[j])) {
				j++
			}
			toks = append(toks, markerToken{text: s[i:j]})
			i = j
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t()'\"=!<>~", rune(s[j])) {
				j++
			}
			toks = append(toks, markerToken{text: s[i:j]})
			i = j
		}
	}
	return toks, nil
}

func (p *markerParser) peek() (markerToken, bool) {
	if p.pos >= len(p.toks) {
		return markerToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *markerParser) next() (markerToken, error) {
	t, ok := p.peek()
	if !ok {
		return markerToken{}, errors.New("unexpected end")
	}
	p.pos++
	return t, nil
}

func (p *markerParser) or() (bool, error) {
	left, err := p.and()
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.quoted || t.text != "or" {
			return left, nil
		}
		p.pos++
		right, err := p.and()
		if err != nil {
			return false, err
		}
		left = left || right
	}
}

func (p *markerParser) and() (bool, error) {
	left, err := p.atom()
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.quoted || t.text != "and" {
			return left, nil
		}
		p.pos++
		right, err := p.atom()
		if err != nil {
			return false, err
		}
		left = left && right
	}
}

func (p *markerParser) atom() (bool, error) {
	t, ok := p.peek()
	if ok && !t.quoted && t.text == "(" {
		p.pos++
		v, err := p.or()
		if err != nil {
			return false, err
		}
		closing, err := p.next()
		if err != nil || closing.quoted || closing.text != ")" {
			return false, errors.New("missing ')'")
		}
		return v, nil
	}

	lhs, err := p.next()
	if err != nil {
		return false, err
	}
	op, err := p.next()
	if err != nil {
		return false, err
	}
	if !op.quoted && op.text == "not" {
		in, err := p.next()
		if err != nil || in.text != "in" {
			return false, errors.New("expected 'in' after 'not'")
		}
		op.text = "not in"
	}
	rhs, err := p.next()
	if err != nil {
		return false, err
	}
	return p.compare(lhs, op.text, rhs)
}

func (p *markerParser) compare(lhs markerToken, op string, rhs markerToken) (bool, error) {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "~=", "===", "in", "not in":
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
	if lhs.quoted == rhs.quoted {
		return false, errors.New("comparison needs one variable and one string")
	}

	variable, literal := lhs.text, rhs.text
	if lhs.quoted {
		variable, literal = rhs.text, lhs.text
	}
	if variable == "extra" {
		return false, nil
	}
	value, known := p.env[variable]
	if !known {
		return true, nil
	}

	// Membership tests keep PEP 508 operand order: lhs in rhs.
	a, b := value, literal
	if lhs.quoted {
		a, b = literal, value
	}
	switch op {
	case "==", "===":
		return value == literal, nil
	case "!=":
		return value != literal, nil
	case "in":
		return strings.Contains(b, a), nil
	case "not in":
		return !strings.Contains(b, a), nil
	default:
		// Ordering on platform strings is not meaningful; keep the edge.
		return true, nil
	}
}
