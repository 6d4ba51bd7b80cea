package icommands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/dtool-irods/pkg/remote"
)

// Client implements remote.Remote with one icommand per primitive.
//
//	Exists          ils <path>              (non-zero exit means absent)
//	MakeCollection  imkdir <path>
//	Put             iput -f <local> <remote>
//	Get             iget -f <remote> <local>
//	ReadAll         iget <remote> -
//	List            ils <path>
//	SetMeta         imeta set -d <path> <key> <value>
//	GetMeta         imeta ls -d <path> <key>
//	Checksum        ichksum <path>
//	Stat            ils -l <path>
//	RemoveAll       irm -rf <path>
type Client struct {
	gateway *Gateway
	parser  Parser
}

var _ remote.Remote = (*Client)(nil)

// NewClient creates a Client. A nil parser selects ParserV4 in the local
// timezone.
func NewClient(gateway *Gateway, parser Parser) *Client {
	if parser == nil {
		parser = ParserV4{}
	}
	return &Client{gateway: gateway, parser: parser}
}

// Exists runs `ils`. A command that ran and exited non-zero means the path
// is absent; a command that could not run is a transport failure.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	_, err := c.gateway.Run(ctx, "ils", path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, remote.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check %s: %w", path, err)
}

func (c *Client) MakeCollection(ctx context.Context, path string) error {
	if _, err := c.gateway.Run(ctx, "imkdir", path); err != nil {
		return fmt.Errorf("create collection %s: %w", path, err)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, localPath, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}

	if _, err := c.gateway.Run(ctx, "iput", "-f", localPath, remotePath); err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	c.gateway.Metrics().RecordBytes("upload", info.Size())
	return nil
}

func (c *Client) Get(ctx context.Context, remotePath, localPath string) error {
	if _, err := c.gateway.Run(ctx, "iget", "-f", remotePath, localPath); err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}
	if info, err := os.Stat(localPath); err == nil {
		c.gateway.Metrics().RecordBytes("download", info.Size())
	}
	return nil
}

func (c *Client) ReadAll(ctx context.Context, remotePath string) ([]byte, error) {
	out, err := c.gateway.Run(ctx, "iget", remotePath, "-")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", remotePath, err)
	}
	c.gateway.Metrics().RecordBytes("download", int64(len(out)))
	return []byte(out), nil
}

func (c *Client) List(ctx context.Context, path string) ([]remote.Entry, error) {
	out, err := c.gateway.Run(ctx, "ils", path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	entries, err := c.parser.Listing(out)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return entries, nil
}

func (c *Client) SetMeta(ctx context.Context, path, key, value string) error {
	if _, err := c.gateway.Run(ctx, "imeta", "set", "-d", path, key, value); err != nil {
		return fmt.Errorf("set metadata %q on %s: %w", key, path, err)
	}
	return nil
}

func (c *Client) GetMeta(ctx context.Context, path, key string) (string, error) {
	out, err := c.gateway.Run(ctx, "imeta", "ls", "-d", path, key)
	if err != nil {
		return "", fmt.Errorf("get metadata %q on %s: %w", key, path, err)
	}
	value, err := c.parser.MetaValue(out)
	if err != nil {
		return "", fmt.Errorf("get metadata %q on %s: %w", key, path, err)
	}
	return value, nil
}

func (c *Client) Checksum(ctx context.Context, path string) (string, error) {
	out, err := c.gateway.Run(ctx, "ichksum", path)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	digest, err := c.parser.Checksum(out)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return digest, nil
}

func (c *Client) Stat(ctx context.Context, path string) (remote.Stat, error) {
	out, err := c.gateway.Run(ctx, "ils", "-l", path)
	if err != nil {
		return remote.Stat{}, fmt.Errorf("stat %s: %w", path, err)
	}
	st, err := c.parser.Stat(out)
	if err != nil {
		return remote.Stat{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return st, nil
}

func (c *Client) RemoveAll(ctx context.Context, path string) error {
	if _, err := c.gateway.Run(ctx, "irm", "-rf", path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
