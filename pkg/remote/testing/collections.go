package testing

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCollectionTests covers Exists, MakeCollection and List.
func (suite *RemoteTestSuite) RunCollectionTests(t *testing.T) {
	t.Run("ExistsMissing", suite.testExistsMissing)
	t.Run("MakeCollection", suite.testMakeCollection)
	t.Run("ListEmpty", suite.testListEmpty)
	t.Run("ListMixed", suite.testListMixed)
	t.Run("ListMissing", suite.testListMissing)
}

// RunObjectTests covers Put, Get and ReadAll.
func (suite *RemoteTestSuite) RunObjectTests(t *testing.T) {
	t.Run("PutReadAll", suite.testPutReadAll)
	t.Run("PutOverwrites", suite.testPutOverwrites)
	t.Run("PutEmpty", suite.testPutEmpty)
	t.Run("Get", suite.testGet)
	t.Run("GetOverwritesLocal", suite.testGetOverwritesLocal)
	t.Run("ReadMissing", suite.testReadMissing)
}

func (suite *RemoteTestSuite) testExistsMissing(t *testing.T) {
	r, dir := suite.setup(t)
	assertExists(t, r, path.Join(dir, "nope"), false)
	assertExists(t, r, path.Join(dir, "nope", "deeper"), false)
}

func (suite *RemoteTestSuite) testMakeCollection(t *testing.T) {
	r, dir := suite.setup(t)
	sub := path.Join(dir, "sub")

	mustMakeCollection(t, r, sub)
	mustMakeCollection(t, r, path.Join(sub, "deeper"))

	assertExists(t, r, dir, true)
	assertExists(t, r, sub, true)
	assertExists(t, r, path.Join(sub, "deeper"), true)
}

func (suite *RemoteTestSuite) testListEmpty(t *testing.T) {
	r, dir := suite.setup(t)

	entries, err := r.List(testContext(), dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (suite *RemoteTestSuite) testListMixed(t *testing.T) {
	r, dir := suite.setup(t)

	mustPut(t, r, path.Join(dir, "a"), []byte("a"))
	mustPut(t, r, path.Join(dir, "b.json"), []byte("{}"))
	mustMakeCollection(t, r, path.Join(dir, "sub"))
	mustPut(t, r, path.Join(dir, "sub", "hidden"), []byte("not a direct child"))

	entries, err := r.List(testContext(), dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "List must return immediate children only")
	assert.Equal(t, map[string]bool{"a": false, "b.json": false, "sub": true}, names(entries))
}

func (suite *RemoteTestSuite) testListMissing(t *testing.T) {
	r, dir := suite.setup(t)

	_, err := r.List(testContext(), path.Join(dir, "nope"))
	AssertErrorIs(t, remote.ErrNotFound, err)
}

func (suite *RemoteTestSuite) testPutReadAll(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	data := []byte("hello\n")

	mustPut(t, r, p, data)

	assertExists(t, r, p, true)
	assert.Equal(t, data, mustReadAll(t, r, p))
}

func (suite *RemoteTestSuite) testPutOverwrites(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")

	mustPut(t, r, p, []byte("first version, longer"))
	mustPut(t, r, p, []byte("second"))

	assert.Equal(t, []byte("second"), mustReadAll(t, r, p))
}

func (suite *RemoteTestSuite) testPutEmpty(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "empty")

	mustPut(t, r, p, nil)

	assert.Empty(t, mustReadAll(t, r, p))
}

func (suite *RemoteTestSuite) testGet(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	data := bytes.Repeat([]byte{0, 1, 2, 0xff}, 1024)
	mustPut(t, r, p, data)

	local := filepath.Join(t.TempDir(), "out")
	require.NoError(t, r.Get(testContext(), p, local))

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func (suite *RemoteTestSuite) testGetOverwritesLocal(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	mustPut(t, r, p, []byte("remote"))

	local := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(local, []byte("stale local content"), 0644))
	require.NoError(t, r.Get(testContext(), p, local))

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)
}

func (suite *RemoteTestSuite) testReadMissing(t *testing.T) {
	r, dir := suite.setup(t)

	_, err := r.ReadAll(testContext(), path.Join(dir, "nope"))
	AssertErrorIs(t, remote.ErrNotFound, err)

	err = r.Get(testContext(), path.Join(dir, "nope"), filepath.Join(t.TempDir(), "out"))
	AssertErrorIs(t, remote.ErrNotFound, err)
}
