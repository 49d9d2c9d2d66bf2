package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
)

// Environment passed to the publish command.
const (
	EnvCaption   = "EVENTPOSTER_CAPTION"
	EnvLocation  = "EVENTPOSTER_LOCATION"
	EnvDebugShot = "EVENTPOSTER_DEBUG_SHOT"
)

// ErrNoCommand is returned when no publish command is configured.
var ErrNoCommand = errors.New("publish command is not configured")

// CommandPublisher hands the post to an external uploader process.
// Args may contain {caption} and {location}; the file paths are appended in order.
type CommandPublisher struct {
	command   string
	args      []string
	timeout   time.Duration
	debugShot string
	logger    *slog.Logger
}

var _ ports.Publisher = (*CommandPublisher)(nil)

// CommandOptions configures the publisher.
type CommandOptions struct {
	Command string
	Args    []string
	Timeout time.Duration
	// DebugShot is where the uploader should drop a screenshot on failure.
	DebugShot string
	Logger    *slog.Logger
}

// NewCommandPublisher builds the publisher.
func NewCommandPublisher(opts CommandOptions) *CommandPublisher {
	p := &CommandPublisher{
		command:   strings.TrimSpace(opts.Command),
		args:      opts.Args,
		timeout:   opts.Timeout,
		debugShot: opts.DebugShot,
		logger:    opts.Logger,
	}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Minute
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	return p
}

// Publish runs the command and waits for it. A failure reports the debug screenshot when the command left one.
func (p *CommandPublisher) Publish(ctx context.Context, req domain.PublishRequest) (domain.PublishResult, error) {
	if p.command == "" {
		return domain.PublishResult{}, ErrNoCommand
	}
	if len(req.Files) == 0 {
		return domain.PublishResult{}, errors.New("nothing to publish")
	}

	if p.debugShot != "" {
		_ = os.Remove(p.debugShot)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	replacer := strings.NewReplacer("{caption}", req.Caption, "{location}", req.Location)
	args := make([]string, 0, len(p.args)+len(req.Files))
	for _, a := range p.args {
		args = append(args, replacer.Replace(a))
	}
	args = append(args, req.Files...)

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Env = append(os.Environ(),
		EnvCaption+"="+req.Caption,
		EnvLocation+"="+req.Location,
		EnvDebugShot+"="+p.debugShot,
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err := cmd.Run()
	p.logger.Debug("publish command finished", "command", p.command, "took", time.Since(started).Round(time.Millisecond), "output", tail(output.String(), 2000))
	if err == nil {
		return domain.PublishResult{}, nil
	}

	result := domain.PublishResult{}
	if p.debugShot != "" {
		if info, statErr := os.Stat(p.debugShot); statErr == nil && !info.IsDir() {
			result.DebugArtifact = p.debugShot
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("publish command timed out after %s", p.timeout)
	}
	return result, fmt.Errorf("publish command: %w: %s", err, tail(strings.TrimSpace(output.String()), 300))
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
