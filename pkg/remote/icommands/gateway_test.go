package icommands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmgilman/go/exec"
	"github.com/marmos91/dtool-irods/internal/ratelimiter"
	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExecutor returns a fixed outcome and records the last command line.
type stubExecutor struct {
	result *exec.Result
	err    error
	args   []string
	ctx    context.Context
}

func (s *stubExecutor) Run(ctx context.Context, args ...string) (*exec.Result, error) {
	s.args = args
	s.ctx = ctx
	return s.result, s.err
}

func exited(code int, stderr string) *stubExecutor {
	return &stubExecutor{
		result: &exec.Result{Stderr: stderr, ExitCode: code},
		err:    &exec.ExecError{ExitCode: code, Stderr: stderr, Err: errors.New("exit status")},
	}
}

func TestGatewayRunSuccess(t *testing.T) {
	stub := &stubExecutor{result: &exec.Result{Stdout: "/z/c:\n  a\n"}}
	gw := NewGateway(stub)

	out, err := gw.Run(context.Background(), "ils", "/z/c")
	require.NoError(t, err)
	assert.Equal(t, "/z/c:\n  a\n", out)
	assert.Equal(t, []string{"ils", "/z/c"}, stub.args)
}

func TestGatewayCommandPrefix(t *testing.T) {
	prefix, err := ParseCommandPrefix(`docker exec -i "irods server"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"docker", "exec", "-i", "irods server"}, prefix)

	stub := &stubExecutor{result: &exec.Result{}}
	gw := NewGateway(stub, WithCommandPrefix(prefix))

	_, err = gw.Run(context.Background(), "imkdir", "/z/c")
	require.NoError(t, err)
	assert.Equal(t, []string{"docker", "exec", "-i", "irods server", "imkdir", "/z/c"}, stub.args)

	empty, err := ParseCommandPrefix("   ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseCommandPrefix(`docker exec "unterminated`)
	assert.Error(t, err)
}

func TestGatewayErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		exec     *stubExecutor
		notFound bool
		exited   bool
	}{
		{
			name:     "does not exist",
			exec:     exited(4, "ERROR: lsUtil: srcPath /z/x does not exist or user lacks access permission\n"),
			notFound: true,
			exited:   true,
		},
		{
			name:     "no rows",
			exec:     exited(3, "ERROR: status = -808000 CAT_NO_ROWS_FOUND\n"),
			notFound: true,
			exited:   true,
		},
		{
			name:     "missing file",
			exec:     exited(3, "ERROR: status = -510002 USER_FILE_DOES_NOT_EXIST\n"),
			notFound: true,
			exited:   true,
		},
		{
			name:     "missing object path",
			exec:     exited(3, "ERROR: status = -310000 OBJ_PATH_DOES_NOT_EXIST\n"),
			notFound: true,
			exited:   true,
		},
		{
			name:   "other failure",
			exec:   exited(4, "ERROR: connectToRhost: error connecting to irods.example.org:1247\n"),
			exited: true,
		},
		{
			name: "cannot start",
			exec: &stubExecutor{err: &exec.ExecError{ExitCode: -1, Err: errors.New(`exec: "ils": executable file not found in $PATH`)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGateway(tt.exec).Run(context.Background(), "ils", "/z/x")
			require.Error(t, err)

			var cmdErr *CommandError
			require.ErrorAs(t, err, &cmdErr)
			assert.Equal(t, tt.exited, cmdErr.Exited())
			assert.Equal(t, tt.notFound, errors.Is(err, remote.ErrNotFound))
			assert.Equal(t, !tt.notFound, errors.Is(err, remote.ErrTransport))
			assert.Contains(t, err.Error(), "ils /z/x")
		})
	}
}

func TestGatewayCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := exited(137, "")
	_, err := NewGateway(stub).Run(ctx, "iget", "/z/x", "-")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, remote.ErrTransport)
}

func TestGatewayTimeout(t *testing.T) {
	stub := &stubExecutor{result: &exec.Result{}}
	_, err := NewGateway(stub, WithTimeout(time.Minute)).Run(context.Background(), "ils", "/z")
	require.NoError(t, err)

	deadline, ok := stub.ctx.Deadline()
	require.True(t, ok, "command context must carry the timeout")
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestGatewayRateLimiter(t *testing.T) {
	stub := &stubExecutor{result: &exec.Result{}}
	gw := NewGateway(stub, WithRateLimiter(ratelimiter.New(1, 1)))

	_, err := gw.Run(context.Background(), "ils", "/z")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gw.Run(ctx, "ils", "/z")
	assert.ErrorIs(t, err, remote.ErrTransport)
}

func TestGatewayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRemoteMetricsWith(reg)

	ok := NewGateway(&stubExecutor{result: &exec.Result{}}, WithMetrics(m))
	_, _ = ok.Run(context.Background(), "ils", "/z")
	_, _ = ok.Run(context.Background(), "ils", "/z")

	bad := NewGateway(exited(4, "boom"), WithMetrics(m))
	_, _ = bad.Run(context.Background(), "iput", "-f", "a", "/z/a")

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "dtool_irods_remote_operations_total"))
	assert.Same(t, m, ok.Metrics())
}
