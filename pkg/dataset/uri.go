package dataset

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Scheme is the URI scheme of datasets stored in iRODS.
const Scheme = "irods"

// GenerateURI returns the URI of the dataset with the given uuid under
// prefix: "irods:" followed by the cleaned absolute path prefix/uuid.
//
// Relative prefixes are anchored at the root of the remote namespace, so the
// result does not depend on any working directory. name is accepted for
// parity with other dtool storage brokers and does not affect the URI.
func GenerateURI(name, uuid, prefix string) string {
	_ = name
	return Scheme + ":" + path.Clean("/"+path.Join(prefix, uuid))
}

// ParseURI returns the absolute remote path addressed by uri.
//
// Accepted forms are "irods:/zone/path", "irods:///zone/path" and a bare
// absolute path "/zone/path".
func ParseURI(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("empty dataset URI")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid dataset URI %q: %w", uri, err)
	}

	if u.Scheme != "" && u.Scheme != Scheme {
		return "", fmt.Errorf("invalid dataset URI %q: unsupported scheme %q", uri, u.Scheme)
	}
	if u.Host != "" {
		return "", fmt.Errorf("invalid dataset URI %q: host %q is not supported, use the iRODS environment to select a server", uri, u.Host)
	}

	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("invalid dataset URI %q: path must be absolute", uri)
	}

	cleaned := path.Clean(p)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid dataset URI %q: path must not be the root", uri)
	}
	return cleaned, nil
}
