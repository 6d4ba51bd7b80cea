// Package icommands implements remote.Remote on top of the iRODS icommands
// command-line clients (ils, imkdir, iput, iget, imeta, ichksum, irm).
//
// The package has three layers:
//
//   - Gateway runs one icommand and classifies its failure. It knows nothing
//     about the output format.
//   - Parser turns the free-form text of a command into a structured value.
//     ParserV4 matches the output of icommands 4.x.
//   - Client composes the two into the primitive operations of remote.Remote.
//
// Credentials and the target zone come from the iRODS environment of the
// calling user (iinit, ~/.irods/irods_environment.json); nothing here
// configures them.
package icommands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/jmgilman/go/exec"
	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/internal/ratelimiter"
	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

// Executor runs one process and captures its output.
//
// A process that started and exited non-zero returns both a Result and an
// *exec.ExecError carrying the exit code. A process that could not be
// started returns an error with exit code -1.
type Executor interface {
	Run(ctx context.Context, args ...string) (*exec.Result, error)
}

// notFoundMarkers are the stderr fragments iRODS uses when the addressed
// path, object or metadata does not exist.
var notFoundMarkers = []string{
	"does not exist",
	"CAT_NO_ROWS_FOUND",
	"USER_FILE_DOES_NOT_EXIST",
	"OBJ_PATH_DOES_NOT_EXIST",
}

// CommandError reports an icommand that failed to run or exited non-zero.
//
// It unwraps to remote.ErrNotFound when stderr carries an iRODS "does not
// exist" marker and to remote.ErrTransport otherwise, so callers can test
// it with errors.Is without inspecting the command.
type CommandError struct {
	// Command is the full command line, including any prefix.
	Command []string

	// ExitCode is the process exit code, or -1 if it never exited.
	ExitCode int

	// Stderr is the captured standard error.
	Stderr string

	// Err is the underlying execution error.
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", strings.Join(e.Command, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the error kind followed by the underlying error.
func (e *CommandError) Unwrap() []error {
	errs := []error{e.kind()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Exited reports whether the command ran and exited with a non-zero status,
// as opposed to never having run.
func (e *CommandError) Exited() bool {
	return e.ExitCode > 0
}

func (e *CommandError) kind() error {
	if e.Exited() {
		for _, marker := range notFoundMarkers {
			if strings.Contains(e.Stderr, marker) {
				return remote.ErrNotFound
			}
		}
	}
	return remote.ErrTransport
}

// Gateway runs icommands.
//
// Each call is a single blocking process execution. A Gateway is safe for
// concurrent use; the optional rate limiter is shared by all callers.
type Gateway struct {
	executor Executor
	prefix   []string
	timeout  time.Duration
	limiter  *ratelimiter.RateLimiter
	metrics  metrics.RemoteMetrics
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithCommandPrefix runs every icommand behind prefix, e.g.
// ["docker", "exec", "irods"].
func WithCommandPrefix(prefix []string) GatewayOption {
	return func(g *Gateway) {
		g.prefix = append([]string(nil), prefix...)
	}
}

// WithTimeout bounds every command. Zero means no bound beyond the caller's
// context.
func WithTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.timeout = timeout
	}
}

// WithRateLimiter throttles command starts. A nil limiter disables
// throttling.
func WithRateLimiter(limiter *ratelimiter.RateLimiter) GatewayOption {
	return func(g *Gateway) {
		g.limiter = limiter
	}
}

// WithMetrics records every command.
func WithMetrics(m metrics.RemoteMetrics) GatewayOption {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// NewGateway creates a Gateway running commands through executor.
func NewGateway(executor Executor, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		executor: executor,
		metrics:  metrics.NewNoopRemoteMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParseCommandPrefix splits a shell-quoted prefix such as
// `docker exec -i "irods server"` into arguments.
func ParseCommandPrefix(prefix string) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, nil
	}
	args, err := shlex.Split(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid command prefix %q: %w", prefix, err)
	}
	return args, nil
}

// Metrics returns the metrics the gateway records to.
func (g *Gateway) Metrics() metrics.RemoteMetrics {
	return g.metrics
}

// Run executes the icommand name with args and returns its standard output.
//
// Failures are returned as *CommandError. The error never hides the command
// line, so it identifies the remote path being operated on.
func (g *Gateway) Run(ctx context.Context, name string, args ...string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: %w: %w", name, remote.ErrTransport, err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(g.prefix)+1+len(args))
	argv = append(argv, g.prefix...)
	argv = append(argv, name)
	argv = append(argv, args...)

	logger.Debug("icommands: %s", strings.Join(argv, " "))

	start := time.Now()
	result, err := g.executor.Run(ctx, argv...)
	if err != nil {
		err = classify(ctx, argv, result, err)
	}
	g.metrics.RecordOperation(name, time.Since(start), err)

	if err != nil {
		logger.Debug("icommands: %s failed: %v", name, err)
		return "", err
	}
	return result.Stdout, nil
}

func classify(ctx context.Context, argv []string, result *exec.Result, err error) *CommandError {
	cmdErr := &CommandError{
		Command:  argv,
		ExitCode: -1,
		Err:      err,
	}

	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		cmdErr.ExitCode = execErr.ExitCode
		cmdErr.Stderr = execErr.Stderr
	} else if result != nil {
		cmdErr.ExitCode = result.ExitCode
		cmdErr.Stderr = result.Stderr
	}

	// A command killed by a cancelled context reports a signal exit code;
	// surface the context error instead.
	if ctxErr := ctx.Err(); ctxErr != nil {
		cmdErr.ExitCode = -1
		cmdErr.Err = ctxErr
	}
	return cmdErr
}

// ============================================================================
// Process execution
// ============================================================================

// processExecutor runs real processes through github.com/jmgilman/go/exec.
type processExecutor struct {
	base exec.Executor
}

// NewProcessExecutor returns an Executor that starts real processes. The
// child inherits the caller's environment plus env.
func NewProcessExecutor(env map[string]string) Executor {
	opts := []exec.Option{exec.WithInheritEnv(), exec.WithDisableColors()}
	if len(env) > 0 {
		opts = append(opts, exec.WithEnv(env))
	}
	return &processExecutor{base: exec.New(opts...)}
}

// Run clones the base executor so concurrent calls never share per-run
// state.
func (p *processExecutor) Run(ctx context.Context, args ...string) (*exec.Result, error) {
	return p.base.Clone().WithContext(ctx).Run(args...)
}
