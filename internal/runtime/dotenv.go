// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadEnvFile merges the dotenv file at path into env. Relative paths resolve
// against basePath. A path suffixed with '?' is optional: a missing file is
// not an error.
func LoadEnvFile(env map[string]string, path, basePath string) error {
	path, optional := strings.CutSuffix(path, "?")

	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(basePath, filepath.FromSlash(path))
	}

	content, err := os.ReadFile(full)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file '%s': %w", path, err)
	}
	return ParseEnvFile(env, content, path)
}

// LoadEnvFileFromCwd is LoadEnvFile relative to cwd, or to the process
// working directory when cwd is empty. It serves --env-file flags.
func LoadEnvFileFromCwd(env map[string]string, path, cwd string) error {
	if cwd == "" && !filepath.IsAbs(strings.TrimSuffix(path, "?")) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		cwd = wd
	}
	return LoadEnvFile(env, path, cwd)
}

// ParseEnvFile parses dotenv content into env. Later assignments win.
//
//	# comment
//	export KEY=value        # export is ignored, trailing " #" starts a comment
//	KEY="a\tb \"q\" \$x"    # double quotes process \n \r \t \\ \" \$
//	KEY='literal\n'         # single quotes are literal
//	KEY=                    # empty value
//
// filename is used in error messages.
func ParseEnvFile(env map[string]string, content []byte, filename string) error {
	sc := bufio.NewScanner(bytes.NewReader(content))
	for lineNum := 1; sc.Scan(); lineNum++ {
		key, value, ok, err := parseEnvLine(sc.Text())
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filename, lineNum, err)
		}
		if ok {
			env[key] = value
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

// parseEnvLine returns ok=false for blank and comment lines.
func parseEnvLine(line string) (key, value string, ok bool, err error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" || line[0] == '#' {
		return "", "", false, nil
	}
	if rest, found := strings.CutPrefix(line, "export "); found {
		line = strings.TrimSpace(rest)
	}

	key, raw, found := strings.Cut(line, "=")
	if !found {
		return "", "", false, errors.New("invalid format (missing '=')")
	}
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", "", false, errors.New("empty variable name")
	case !envNamePattern.MatchString(key):
		return "", "", false, fmt.Errorf("invalid variable name %q", key)
	}

	value, err = parseEnvValue(strings.TrimSpace(raw))
	if err != nil {
		return "", "", false, err
	}
	return key, value, true, nil
}

func parseEnvValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	quote := raw[0]
	if quote != '"' && quote != '\'' {
		if idx := strings.Index(raw, " #"); idx != -1 {
			raw = raw[:idx]
		}
		return strings.TrimSpace(raw), nil
	}

	var sb strings.Builder
	for i := 1; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == quote:
			if tail := strings.TrimSpace(raw[i+1:]); tail != "" && tail[0] != '#' {
				return "", fmt.Errorf("unexpected %q after closing quote", tail)
			}
			return sb.String(), nil
		case c == '\\' && quote == '"' && i+1 < len(raw):
			i++
			sb.WriteString(unescape(raw[i]))
		default:
			sb.WriteByte(c)
		}
	}
	if quote == '"' {
		return "", errors.New("unterminated double quote")
	}
	return "", errors.New("unterminated single quote")
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 'r':
		return "\r"
	case 't':
		return "\t"
	case '\\', '"', '$':
		return string(c)
	default:
		// Unknown escapes keep the backslash.
		return "\\" + string(c)
	}
}
