package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const DefaultInstallTimeout = 5 * time.Minute

// Installer fetches a missing strategy package.
type Installer interface {
	Install(ctx context.Context, pkg string) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(ctx context.Context, pkg string) error

func (f InstallerFunc) Install(ctx context.Context, pkg string) error { return f(ctx, pkg) }

// CommandInstaller runs a configured command with the package name appended,
// e.g. ["make", "plugin", "PKG="] or ["./scripts/fetch-strategy.sh"].
type CommandInstaller struct {
	Command []string
	Timeout time.Duration
}

func (c CommandInstaller) Install(ctx context.Context, pkg string) error {
	if len(c.Command) == 0 {
		return errors.New("no install command configured")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultInstallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, c.Command[1:]...), pkg)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("install %s: timed out after %s", pkg, timeout)
		}
		return fmt.Errorf("install %s: %w: %s", pkg, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
