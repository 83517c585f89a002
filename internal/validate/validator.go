package validate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/rs/zerolog"
)

// Result reports the outcome of a syntax check.
type Result struct {
	Valid  bool
	Output string
	// Skipped is true when no checker is configured for the kind.
	// The reload step is then the first point where bad syntax surfaces.
	Skipped bool
}

// Validator checks a configuration candidate with the service's own
// syntax-checking tool. Implementations must never touch the live
// configuration path.
type Validator interface {
	Validate(ctx context.Context, kind export.ServiceKind, candidate []byte) (Result, error)
}

// UnavailableError means the checker itself could not run (missing
// binary, permission denied, timeout). This is distinct from a syntax
// failure: the candidate may well be fine, the tooling is broken.
type UnavailableError struct {
	Tool string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("syntax checker %q unavailable: %v", e.Tool, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ExecValidator runs a configured checker command per service kind
// against a temporary copy of the candidate. The candidate path is
// appended as the command's final argument.
type ExecValidator struct {
	logger   zerolog.Logger
	commands map[export.ServiceKind][]string
	timeout  time.Duration
}

// NewExecValidator constructs an ExecValidator. Kinds without an entry
// in commands are reported as skipped.
func NewExecValidator(logger zerolog.Logger, commands map[export.ServiceKind][]string, timeout time.Duration) *ExecValidator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecValidator{
		logger:   logger,
		commands: commands,
		timeout:  timeout,
	}
}

// Validate implements Validator.
func (v *ExecValidator) Validate(ctx context.Context, kind export.ServiceKind, candidate []byte) (Result, error) {
	command := v.commands[kind]
	if len(command) == 0 {
		v.logger.Debug().Str("service", string(kind)).Msg("no syntax checker configured, skipping validation")
		return Result{Valid: true, Skipped: true}, nil
	}

	tmp, err := os.CreateTemp("", "moxnas-confd-candidate-*")
	if err != nil {
		return Result{}, &UnavailableError{Tool: command[0], Err: fmt.Errorf("create candidate copy: %w", err)}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(candidate); err != nil {
		tmp.Close()
		return Result{}, &UnavailableError{Tool: command[0], Err: fmt.Errorf("write candidate copy: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return Result{}, &UnavailableError{Tool: command[0], Err: fmt.Errorf("close candidate copy: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	args := append(append([]string(nil), command[1:]...), tmp.Name())
	cmd := exec.CommandContext(runCtx, command[0], args...)
	output, err := cmd.CombinedOutput()
	diagnostics := strings.TrimSpace(string(output))

	if err == nil {
		return Result{Valid: true, Output: diagnostics}, nil
	}

	if runCtx.Err() != nil {
		return Result{}, &UnavailableError{Tool: command[0], Err: fmt.Errorf("checker timed out: %w", runCtx.Err())}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The checker ran and rejected the candidate.
		return Result{Valid: false, Output: diagnostics}, nil
	}

	return Result{}, &UnavailableError{Tool: command[0], Err: err}
}
