// Package codec stores text and structured values as whole remote objects.
//
// Values are exchanged as JSON. Writes are staged in a local temporary file
// that is uploaded with remote.Remote.Put and removed on every exit path;
// reads fetch the whole object in one call.
package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

// Codec reads and writes whole remote objects.
type Codec struct {
	remote remote.Remote
	tmpDir string
}

// Option configures a Codec.
type Option func(*Codec)

// WithTempDir stages writes in dir instead of the system temporary
// directory.
func WithTempDir(dir string) Option {
	return func(c *Codec) {
		c.tmpDir = dir
	}
}

// New creates a Codec writing through r.
func New(r remote.Remote, opts ...Option) *Codec {
	c := &Codec{remote: r}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PutText replaces the object at remotePath with text.
func (c *Codec) PutText(ctx context.Context, remotePath, text string) error {
	return c.put(ctx, remotePath, []byte(text))
}

// GetText returns the object at remotePath as text.
func (c *Codec) GetText(ctx context.Context, remotePath string) (string, error) {
	data, err := c.remote.ReadAll(ctx, remotePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutObject replaces the object at remotePath with the JSON encoding of v.
func (c *Codec) PutObject(ctx context.Context, remotePath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", remotePath, err)
	}
	return c.put(ctx, remotePath, data)
}

// GetObject decodes the JSON object at remotePath into v.
//
// Content that is not valid JSON for v fails with remote.ErrParse.
func (c *Codec) GetObject(ctx context.Context, remotePath string, v any) error {
	data, err := c.remote.ReadAll(ctx, remotePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", remotePath,
			&remote.ParseError{Shape: "json", Reason: err.Error(), Output: truncate(string(data), 256)})
	}
	return nil
}

// put stages data in a temporary file and uploads it.
func (c *Codec) put(ctx context.Context, remotePath string, data []byte) error {
	f, err := os.CreateTemp(c.tmpDir, "dtool-irods-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", remotePath, err)
	}
	staged := f.Name()
	defer func() {
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			logger.Warn("codec: failed to remove staging file %s: %v", staged, err)
		}
	}()

	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", remotePath, err)
	}

	logger.Debug("codec: put %s (%d bytes)", remotePath, len(data))
	return c.remote.Put(ctx, staged, remotePath)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
