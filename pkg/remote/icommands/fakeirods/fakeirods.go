// Package fakeirods simulates the iRODS icommands in memory.
//
// A Server implements icommands.Executor. It keeps a catalog of
// collections and data objects and answers ils, imkdir, iput, iget, imeta,
// ichksum and irm with the text, stderr messages and exit codes the real
// icommands produce, so the gateway, the output parsers and everything
// above them run unchanged against it.
//
// Usage:
//
//	srv := fakeirods.New()
//	client := icommands.NewClient(icommands.NewGateway(srv), icommands.ParserV4{Location: srv.Location()})
package fakeirods

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmgilman/go/exec"
)

// Home is the home collection of the simulated user. It exists in every
// new Server and is the base for relative paths.
const Home = "/tempZone/home/rods"

const (
	resource = "demoResc"
	owner    = "rods"

	// exitError is the status icommands exit with on a failed request.
	exitError = 4
)

type node struct {
	collection bool
	data       []byte
	modTime    time.Time
	meta       map[string]string
}

type failure struct {
	exitCode int
	stderr   string
}

// Server is an in-memory iRODS zone driven through icommand lines.
type Server struct {
	mu       sync.Mutex
	nodes    map[string]*node
	location *time.Location
	now      func() time.Time
	calls    [][]string
	failures map[string]failure
	sha256   bool
}

// Option configures a Server.
type Option func(*Server)

// WithLocation sets the timezone `ils -l` timestamps are printed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		s.location = loc
	}
}

// WithClock sets the clock used to stamp uploads.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithSHA256Checksums makes ichksum report "sha2:" tagged base64 SHA-256
// digests, as zones configured with the SHA256 default hash scheme do.
func WithSHA256Checksums() Option {
	return func(s *Server) {
		s.sha256 = true
	}
}

// New creates a Server holding only the collections leading to Home.
func New(opts ...Option) *Server {
	s := &Server{
		nodes:    make(map[string]*node),
		location: time.Local,
		now:      time.Now,
		failures: make(map[string]failure),
	}
	for _, opt := range opts {
		opt(s)
	}

	for p := Home; ; p = path.Dir(p) {
		s.nodes[p] = &node{collection: true, modTime: s.now()}
		if p == "/" {
			break
		}
	}
	return s
}

// Location returns the timezone timestamps are printed in.
func (s *Server) Location() *time.Location {
	return s.location
}

// Calls returns every command line run so far.
func (s *Server) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CountCalls returns how many times the icommand name has run.
func (s *Server) CountCalls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if len(c) > 0 && c[0] == name {
			n++
		}
	}
	return n
}

// FailCommand makes every later run of the icommand name fail with
// exitCode and stderr. An exitCode of -1 simulates a command that cannot be
// started.
func (s *Server) FailCommand(name string, exitCode int, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = failure{exitCode: exitCode, stderr: stderr}
}

// ResetFailures clears everything registered with FailCommand.
func (s *Server) ResetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Run executes one icommand line.
func (s *Server) Run(ctx context.Context, args ...string) (*exec.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &exec.ExecError{Command: args, ExitCode: -1, Err: err}
	}
	if len(args) == 0 {
		return nil, &exec.ExecError{Command: args, ExitCode: -1, Err: errors.New("no command")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, append([]string(nil), args...))

	if f, ok := s.failures[args[0]]; ok {
		if f.exitCode < 0 {
			return nil, &exec.ExecError{Command: args, ExitCode: -1, Err: fmt.Errorf("exec: %q: executable file not found in $PATH", args[0])}
		}
		return fail(args, f.exitCode, f.stderr)
	}

	var (
		stdout string
		stderr string
	)
	switch args[0] {
	case "ils":
		stdout, stderr = s.ils(args[1:])
	case "imkdir":
		stderr = s.imkdir(args[1:])
	case "iput":
		stderr = s.iput(args[1:])
	case "iget":
		stdout, stderr = s.iget(args[1:])
	case "imeta":
		stdout, stderr = s.imeta(args[1:])
	case "ichksum":
		stdout, stderr = s.ichksum(args[1:])
	case "irm":
		stderr = s.irm(args[1:])
	default:
		return nil, &exec.ExecError{Command: args, ExitCode: -1, Err: fmt.Errorf("exec: %q: executable file not found in $PATH", args[0])}
	}

	if stderr != "" {
		return fail(args, exitError, stderr)
	}
	return &exec.Result{Stdout: stdout, Combined: stdout}, nil
}

func fail(args []string, exitCode int, stderr string) (*exec.Result, error) {
	result := &exec.Result{Stderr: stderr, Combined: stderr, ExitCode: exitCode}
	return result, &exec.ExecError{
		Command:  args,
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      fmt.Errorf("exit status %d", exitCode),
	}
}

// splitFlags separates leading "-x" flags from operands. "-" alone is an
// operand (stdout for iget).
func splitFlags(args []string) (map[rune]bool, []string) {
	flags := make(map[rune]bool)
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if a == "-" || !strings.HasPrefix(a, "-") {
			break
		}
		for _, r := range a[1:] {
			flags[r] = true
		}
	}
	return flags, args[i:]
}

func resolve(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(Home, p)
	}
	return path.Clean(p)
}

// children returns the sorted direct children of the collection at p.
func (s *Server) children(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}
	var out []string
	for name := range s.nodes {
		if name == p || !strings.HasPrefix(name, prefix) {
			continue
		}
		if !strings.Contains(strings.TrimPrefix(name, prefix), "/") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Server) longLine(p string, n *node) string {
	return fmt.Sprintf("  %-12s %8d %-14s %12d %s & %s\n",
		owner, 0, resource, len(n.data), n.modTime.In(s.location).Format("2006-01-02.15:04"), path.Base(p))
}

func (s *Server) ils(args []string) (string, string) {
	flags, operands := splitFlags(args)
	target := Home
	if len(operands) > 0 {
		target = resolve(operands[0])
	}

	n, ok := s.nodes[target]
	if !ok {
		return "", fmt.Sprintf("ERROR: lsUtil: srcPath %s does not exist or user lacks access permission\n", target)
	}

	if !n.collection {
		if flags['l'] {
			return s.longLine(target, n), ""
		}
		return "  " + target + "\n", ""
	}

	var b strings.Builder
	b.WriteString(target + ":\n")
	for _, child := range s.children(target) {
		c := s.nodes[child]
		switch {
		case c.collection:
			b.WriteString("  C- " + child + "\n")
		case flags['l']:
			b.WriteString(s.longLine(child, c))
		default:
			b.WriteString("  " + path.Base(child) + "\n")
		}
	}
	return b.String(), ""
}

func (s *Server) imkdir(args []string) string {
	flags, operands := splitFlags(args)
	if len(operands) != 1 {
		return "ERROR: imkdir: missing collection name\n"
	}
	target := resolve(operands[0])

	if _, ok := s.nodes[target]; ok {
		if flags['p'] {
			return ""
		}
		return fmt.Sprintf("ERROR: mkdirUtil: mkColl of %s error. status = -809000 CATALOG_ALREADY_HAS_ITEM_BY_THAT_NAME\n", target)
	}

	parent, ok := s.nodes[path.Dir(target)]
	if !ok && !flags['p'] {
		return fmt.Sprintf("ERROR: mkdirUtil: mkColl of %s error. status = -814000 CAT_UNKNOWN_COLLECTION\n", target)
	}
	if ok && !parent.collection {
		return fmt.Sprintf("ERROR: mkdirUtil: mkColl of %s error. status = -814000 CAT_UNKNOWN_COLLECTION\n", target)
	}

	for p := target; ; p = path.Dir(p) {
		if _, exists := s.nodes[p]; exists {
			break
		}
		s.nodes[p] = &node{collection: true, modTime: s.now()}
	}
	return ""
}

func (s *Server) iput(args []string) string {
	flags, operands := splitFlags(args)
	if len(operands) != 2 {
		return "ERROR: iput: expected a local file and a target path\n"
	}
	local, target := operands[0], resolve(operands[1])

	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Sprintf("ERROR: putUtil: srcPath %s does not exist\n", local)
	}

	parent, ok := s.nodes[path.Dir(target)]
	if !ok || !parent.collection {
		return fmt.Sprintf("ERROR: putUtil: put error for %s, status = -814000 status = -814000 CAT_UNKNOWN_COLLECTION\n", target)
	}

	existing, ok := s.nodes[target]
	if ok && existing.collection {
		return fmt.Sprintf("ERROR: putUtil: put error for %s, status = -809000 CATALOG_ALREADY_HAS_ITEM_BY_THAT_NAME\n", target)
	}
	if ok && !flags['f'] {
		return fmt.Sprintf("ERROR: putUtil: put error for %s, status = -312000 status = -312000 OVERWRITE_WITHOUT_FORCE_FLAG\n", target)
	}

	meta := map[string]string{}
	if ok {
		meta = existing.meta
	}
	s.nodes[target] = &node{data: data, modTime: s.now(), meta: meta}
	return ""
}

func (s *Server) iget(args []string) (string, string) {
	flags, operands := splitFlags(args)
	if len(operands) != 2 {
		return "", "ERROR: iget: expected a source path and a local target\n"
	}
	source := resolve(operands[0])

	n, ok := s.nodes[source]
	if !ok || n.collection {
		return "", fmt.Sprintf("ERROR: getUtil: srcPath %s does not exist\n", source)
	}

	if operands[1] == "-" {
		return string(n.data), ""
	}

	local := operands[1]
	if _, err := os.Stat(local); err == nil && !flags['f'] {
		return "", fmt.Sprintf("ERROR: getUtil: get error for %s status = -312000 OVERWRITE_WITHOUT_FORCE_FLAG\n", local)
	}
	if err := os.WriteFile(local, n.data, 0644); err != nil {
		return "", fmt.Sprintf("ERROR: getUtil: get error for %s status = -510002 UNIX_FILE_OPEN_ERR, %v\n", local, err)
	}
	return "", ""
}

func (s *Server) imeta(args []string) (string, string) {
	if len(args) < 3 || args[1] != "-d" {
		return "", "ERROR: imeta: only data object (-d) operations are supported\n"
	}
	op, target, rest := args[0], resolve(args[2]), args[3:]

	n, ok := s.nodes[target]
	if !ok || n.collection {
		return "", fmt.Sprintf("ERROR: imeta: data object %s does not exist\n", target)
	}

	switch op {
	case "set", "add":
		if len(rest) < 2 {
			return "", "ERROR: imeta: missing attribute or value\n"
		}
		if op == "add" {
			if _, exists := n.meta[rest[0]]; exists {
				return "", "ERROR: rcModAVUMetadata failed with error -809000 CATALOG_ALREADY_HAS_ITEM_BY_THAT_NAME\n"
			}
		}
		n.meta[rest[0]] = rest[1]
		return "", ""

	case "ls":
		var b strings.Builder
		fmt.Fprintf(&b, "AVUs defined for dataObj %s:\n", target)

		var keys []string
		if len(rest) > 0 {
			if _, exists := n.meta[rest[0]]; exists {
				keys = []string{rest[0]}
			}
		} else {
			for k := range n.meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}

		if len(keys) == 0 {
			b.WriteString("None\n")
			return b.String(), ""
		}
		for i, k := range keys {
			if i > 0 {
				b.WriteString("----\n")
			}
			fmt.Fprintf(&b, "attribute: %s\nvalue: %s\nunits: \n", k, n.meta[k])
		}
		return b.String(), ""
	}

	return "", fmt.Sprintf("ERROR: imeta: unsupported operation %q\n", op)
}

func (s *Server) ichksum(args []string) (string, string) {
	_, operands := splitFlags(args)
	if len(operands) != 1 {
		return "", "ERROR: ichksum: expected one path\n"
	}
	target := resolve(operands[0])

	n, ok := s.nodes[target]
	if !ok || n.collection {
		return "", fmt.Sprintf("ERROR: chksumUtil: srcPath %s does not exist\n", target)
	}

	var digest string
	if s.sha256 {
		sum := sha256.Sum256(n.data)
		digest = "sha2:" + base64.StdEncoding.EncodeToString(sum[:])
	} else {
		sum := md5.Sum(n.data)
		digest = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("    %-36s    %s\nTotal checksum performed = 1, Failed checksum = 0\n",
		path.Base(target), digest), ""
}

func (s *Server) irm(args []string) string {
	flags, operands := splitFlags(args)
	if len(operands) != 1 {
		return "ERROR: irm: expected one path\n"
	}
	target := resolve(operands[0])

	n, ok := s.nodes[target]
	if !ok {
		return fmt.Sprintf("ERROR: rmUtil: srcPath %s does not exist\n", target)
	}
	if n.collection && !flags['r'] {
		return fmt.Sprintf("ERROR: rmUtil: cannot remove collection %s without -r\n", target)
	}

	delete(s.nodes, target)
	prefix := target + "/"
	for p := range s.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(s.nodes, p)
		}
	}
	return ""
}
