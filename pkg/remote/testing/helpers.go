package testing

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// setup returns a fresh remote and a new, empty collection to work in.
func (suite *RemoteTestSuite) setup(t *testing.T) (remote.Remote, string) {
	t.Helper()
	r := suite.NewRemote(t)
	dir := path.Join(suite.Base, "suite-"+uuid.NewString())
	mustMakeCollection(t, r, dir)
	return r, dir
}

// writeLocal writes data to a new local file and returns its path.
func writeLocal(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

// mustMakeCollection creates a collection and fails the test if it errors.
func mustMakeCollection(t *testing.T, r remote.Remote, p string) {
	t.Helper()
	require.NoError(t, r.MakeCollection(testContext(), p), "MakeCollection should succeed")
}

// mustPut uploads data to p and fails the test if it errors.
func mustPut(t *testing.T, r remote.Remote, p string, data []byte) {
	t.Helper()
	require.NoError(t, r.Put(testContext(), writeLocal(t, data), p), "Put should succeed")
}

// mustReadAll reads p and fails the test if it errors.
func mustReadAll(t *testing.T, r remote.Remote, p string) []byte {
	t.Helper()
	data, err := r.ReadAll(testContext(), p)
	require.NoError(t, err, "ReadAll should succeed")
	return data
}

// assertExists checks whether p exists.
func assertExists(t *testing.T, r remote.Remote, p string, expected bool) {
	t.Helper()
	exists, err := r.Exists(testContext(), p)
	require.NoError(t, err, "Exists should not error")
	assert.Equal(t, expected, exists, "existence mismatch for %s", p)
}

// names flattens entries into name -> isCollection.
func names(entries []remote.Entry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name] = e.IsCollection
	}
	return out
}
