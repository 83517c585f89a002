package servicectl

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// commandRunner executes one systemctl invocation and returns its
// combined output. Injectable so tests never touch the real host.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SystemdController implements Controller by calling systemctl.
type SystemdController struct {
	logger  zerolog.Logger
	timeout time.Duration
	run     commandRunner
}

// SystemdOption customizes SystemdController behavior.
type SystemdOption func(*SystemdController)

// WithCommandRunner overrides how systemctl is invoked (for tests).
func WithCommandRunner(run commandRunner) SystemdOption {
	return func(c *SystemdController) {
		c.run = run
	}
}

// NewSystemdController constructs a systemctl-backed Controller with
// the given per-call timeout.
func NewSystemdController(logger zerolog.Logger, timeout time.Duration, opts ...SystemdOption) *SystemdController {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &SystemdController{
		logger:  logger,
		timeout: timeout,
		run:     execRunner,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start implements Controller.
func (c *SystemdController) Start(ctx context.Context, unit string) error {
	return c.systemctl(ctx, "start", unit)
}

// Stop implements Controller.
func (c *SystemdController) Stop(ctx context.Context, unit string) error {
	return c.systemctl(ctx, "stop", unit)
}

// Restart implements Controller.
func (c *SystemdController) Restart(ctx context.Context, unit string) error {
	return c.systemctl(ctx, "restart", unit)
}

// Reload implements Controller. Reload is preferred because it keeps
// in-flight client connections alive; when the unit reports it does
// not support reload, the controller restarts it instead and records
// the fallback in the result.
func (c *SystemdController) Reload(ctx context.Context, unit string) (ReloadResult, error) {
	err := c.systemctl(ctx, "reload", unit)
	if err == nil {
		return ReloadResult{}, nil
	}
	if !reloadUnsupported(err) {
		return ReloadResult{}, err
	}

	c.logger.Warn().Str("unit", unit).Msg("unit does not support reload, restarting instead")
	if err := c.systemctl(ctx, "restart", unit); err != nil {
		return ReloadResult{UsedRestart: true}, err
	}
	return ReloadResult{UsedRestart: true}, nil
}

// Status implements Controller. A failing query yields StatusUnknown.
func (c *SystemdController) Status(ctx context.Context, unit string) Status {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(callCtx, "systemctl", "is-active", unit)
	state := strings.TrimSpace(string(output))

	switch state {
	case "active", "reloading", "activating":
		return StatusRunning
	case "inactive", "failed", "deactivating":
		// is-active exits non-zero for these; the printed state is
		// still authoritative.
		return StatusStopped
	}
	if err != nil {
		c.logger.Warn().Str("unit", unit).Err(err).Str("state", state).Msg("status query failed")
	}
	return StatusUnknown
}

func (c *SystemdController) systemctl(ctx context.Context, verb, unit string) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(callCtx, "systemctl", verb, unit)
	if err != nil {
		text := strings.TrimSpace(string(output))
		if text != "" {
			return fmt.Errorf("systemctl %s %s: %s: %w", verb, unit, text, err)
		}
		return fmt.Errorf("systemctl %s %s: %w", verb, unit, err)
	}

	c.logger.Debug().Str("unit", unit).Str("verb", verb).Msg("systemctl ok")
	return nil
}

func reloadUnsupported(err error) bool {
	text := err.Error()
	return strings.Contains(text, "Job type reload is not applicable") ||
		strings.Contains(text, "does not support reload")
}
