// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

const (
	KeywordFrom    Keyword = "FROM"
	KeywordWorkdir Keyword = "WORKDIR"
	KeywordRun     Keyword = "RUN"
	KeywordCopy    Keyword = "COPY"
	KeywordExpose  Keyword = "EXPOSE"
	KeywordEnv     Keyword = "ENV"
	KeywordCmd     Keyword = "CMD"
)

const (
	// CountAll numbers every instruction, as Podman and the legacy Docker
	// builder do in "STEP k/M" and "Step k/M" lines.
	CountAll CountStyle = iota
	// CountBuildKit numbers only the instructions BuildKit executes as
	// "[k/M]" vertices: FROM, WORKDIR, RUN and COPY.
	CountBuildKit
)

var (
	// ErrInvalidInstruction is the sentinel error wrapped by InvalidInstructionError.
	ErrInvalidInstruction = errors.New("invalid Dockerfile instruction")

	bareEnvValue = regexp.MustCompile(`^[A-Za-z0-9_./:@%+,=-]+$`)
)

type (
	// Keyword is a Dockerfile instruction keyword.
	Keyword string

	// CountStyle selects how an engine numbers build steps in its output.
	CountStyle int

	// Instruction is one rendered Dockerfile line.
	Instruction struct {
		Keyword Keyword
		Args    string
		// Step is the caller-defined step that contributed the instruction.
		Step int
	}

	// EnvPair is one ENV assignment.
	EnvPair struct {
		Name  string
		Value string
	}

	// InvalidInstructionError reports an instruction that cannot be rendered.
	InvalidInstructionError struct {
		Keyword Keyword
		Step    int
		Reason  string
	}

	// Dockerfile accumulates instructions in order. Builder methods record
	// the first error and turn into no-ops afterwards; Render returns it.
	Dockerfile struct {
		instructions []Instruction
		step         int
		err          error
	}
)

// NewDockerfile returns an empty Dockerfile.
func NewDockerfile() *Dockerfile {
	return &Dockerfile{}
}

// ForStep tags the instructions added after it with step.
func (d *Dockerfile) ForStep(step int) *Dockerfile {
	d.step = step
	return d
}

// From starts the build from image.
func (d *Dockerfile) From(image string) *Dockerfile {
	if strings.TrimSpace(image) == "" || strings.ContainsAny(image, " \t\n") {
		return d.fail(KeywordFrom, fmt.Sprintf("malformed image reference %q", image))
	}
	return d.add(KeywordFrom, image)
}

// Workdir sets the working directory of the following instructions and of
// the container process.
func (d *Dockerfile) Workdir(dir string) *Dockerfile {
	if !strings.HasPrefix(dir, "/") || strings.ContainsAny(dir, " \t\n") {
		return d.fail(KeywordWorkdir, fmt.Sprintf("%q must be an absolute path without whitespace", dir))
	}
	return d.add(KeywordWorkdir, dir)
}

// Run adds a shell-form RUN executing each command in order, joined with &&.
// Every word is shell-quoted.
func (d *Dockerfile) Run(commands ...[]string) *Dockerfile {
	if len(commands) == 0 {
		return d.fail(KeywordRun, "no command")
	}
	parts := make([]string, 0, len(commands))
	for _, words := range commands {
		quoted, err := ShellQuote(words...)
		if err != nil {
			return d.fail(KeywordRun, err.Error())
		}
		parts = append(parts, quoted)
	}
	return d.RunScript(strings.Join(parts, " && "))
}

// RunScript adds a shell-form RUN with a literal script. The script must be
// a single line of valid POSIX shell.
func (d *Dockerfile) RunScript(script string) *Dockerfile {
	if err := CheckScript(script); err != nil {
		return d.fail(KeywordRun, err.Error())
	}
	return d.add(KeywordRun, script)
}

// Copy copies src from the build context to dst.
func (d *Dockerfile) Copy(src, dst string) *Dockerfile {
	if src == "" || dst == "" {
		return d.fail(KeywordCopy, "source and destination are required")
	}
	if strings.ContainsAny(src+dst, " \t") {
		args, err := execForm([]string{src, dst})
		if err != nil {
			return d.fail(KeywordCopy, err.Error())
		}
		return d.add(KeywordCopy, args)
	}
	return d.add(KeywordCopy, src+" "+dst)
}

// Expose declares a TCP port.
func (d *Dockerfile) Expose(port int) *Dockerfile {
	if port < 1 || port > 65535 {
		return d.fail(KeywordExpose, fmt.Sprintf("port %d out of range 1-65535", port))
	}
	return d.add(KeywordExpose, strconv.Itoa(port))
}

// Env sets variables in one instruction, in the given order.
func (d *Dockerfile) Env(vars ...EnvPair) *Dockerfile {
	if len(vars) == 0 {
		return d.fail(KeywordEnv, "no variables")
	}
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		if v.Name == "" || strings.ContainsAny(v.Name, "= \t\n") {
			return d.fail(KeywordEnv, fmt.Sprintf("invalid variable name %q", v.Name))
		}
		if strings.ContainsAny(v.Value, "\n\r") {
			return d.fail(KeywordEnv, fmt.Sprintf("value of %s spans lines", v.Name))
		}
		parts = append(parts, v.Name+"="+envValue(v.Value))
	}
	return d.add(KeywordEnv, strings.Join(parts, " "))
}

// Cmd sets the default command in exec form.
func (d *Dockerfile) Cmd(words ...string) *Dockerfile {
	if len(words) == 0 {
		return d.fail(KeywordCmd, "no command")
	}
	args, err := execForm(words)
	if err != nil {
		return d.fail(KeywordCmd, err.Error())
	}
	return d.add(KeywordCmd, args)
}

// Reject records an error for a kw instruction the caller could not build.
func (d *Dockerfile) Reject(kw Keyword, reason string) *Dockerfile {
	return d.fail(kw, reason)
}

// Err returns the first error recorded by a builder method.
func (d *Dockerfile) Err() error { return d.err }

// Instructions returns a copy of the instructions in order.
func (d *Dockerfile) Instructions() []Instruction {
	return append([]Instruction(nil), d.instructions...)
}

// Render returns the Dockerfile text: one instruction per line.
func (d *Dockerfile) Render() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	if len(d.instructions) == 0 || d.instructions[0].Keyword != KeywordFrom {
		return "", &InvalidInstructionError{Keyword: KeywordFrom, Reason: "a Dockerfile must start with FROM"}
	}
	var sb strings.Builder
	for _, in := range d.instructions {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// StepAt maps the 1-based build step number an engine printed to the
// instruction that produced it.
func (d *Dockerfile) StepAt(n int, style CountStyle) (Instruction, bool) {
	if n < 1 {
		return Instruction{}, false
	}
	i := 0
	for _, in := range d.instructions {
		if style == CountBuildKit && !in.Keyword.executes() {
			continue
		}
		i++
		if i == n {
			return in, true
		}
	}
	return Instruction{}, false
}

// Count returns how many build steps the engine reports for style.
func (d *Dockerfile) Count(style CountStyle) int {
	if style == CountAll {
		return len(d.instructions)
	}
	n := 0
	for _, in := range d.instructions {
		if in.Keyword.executes() {
			n++
		}
	}
	return n
}

// String renders the instruction as a Dockerfile line.
func (in Instruction) String() string {
	return string(in.Keyword) + " " + in.Args
}

// Error implements the error interface.
func (e *InvalidInstructionError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("invalid %s instruction (step %d): %s", e.Keyword, e.Step, e.Reason)
	}
	return fmt.Sprintf("invalid %s instruction: %s", e.Keyword, e.Reason)
}

// Unwrap returns ErrInvalidInstruction for errors.Is() compatibility.
func (e *InvalidInstructionError) Unwrap() error { return ErrInvalidInstruction }

// ShellQuote quotes words for a POSIX shell and joins them with spaces.
// Words that need no quoting are kept verbatim.
func ShellQuote(words ...string) (string, error) {
	if len(words) == 0 {
		return "", errors.New("empty command")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", w, err)
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}

// CheckScript parses script as a single line of POSIX shell.
func CheckScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return errors.New("empty script")
	}
	if strings.ContainsAny(script, "\n\r") {
		return errors.New("script spans lines")
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(script), "RUN"); err != nil {
		return fmt.Errorf("parse script: %w", err)
	}
	return nil
}

func (d *Dockerfile) add(kw Keyword, args string) *Dockerfile {
	if d.err == nil {
		d.instructions = append(d.instructions, Instruction{Keyword: kw, Args: args, Step: d.step})
	}
	return d
}

func (d *Dockerfile) fail(kw Keyword, reason string) *Dockerfile {
	if d.err == nil {
		d.err = &InvalidInstructionError{Keyword: kw, Step: d.step, Reason: reason}
	}
	return d
}

func (k Keyword) executes() bool {
	switch k {
	case KeywordFrom, KeywordWorkdir, KeywordRun, KeywordCopy:
		return true
	default:
		return false
	}
}

// execForm renders words as the JSON array of exec-form instructions.
func execForm(words []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(words); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// envValue quotes v for an ENV instruction. Quoted values escape the
// characters the Dockerfile parser interprets inside double quotes.
func envValue(v string) string {
	if bareEnvValue.MatchString(v) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(v) + `"`
}
