package testing

import (
	"crypto/md5"
	"encoding/hex"
	"path"
	"testing"
	"time"

	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMetadataTests covers SetMeta and GetMeta.
func (suite *RemoteTestSuite) RunMetadataTests(t *testing.T) {
	t.Run("SetGet", suite.testMetaSetGet)
	t.Run("SetReplaces", suite.testMetaSetReplaces)
	t.Run("ValueWithSpaces", suite.testMetaValueWithSpaces)
	t.Run("MissingKey", suite.testMetaMissingKey)
	t.Run("MissingObject", suite.testMetaMissingObject)
}

// RunPropertyTests covers Checksum and Stat.
func (suite *RemoteTestSuite) RunPropertyTests(t *testing.T) {
	t.Run("Checksum", suite.testChecksum)
	t.Run("ChecksumMissing", suite.testChecksumMissing)
	t.Run("Stat", suite.testStat)
	t.Run("StatMissing", suite.testStatMissing)
}

// RunRemovalTests covers RemoveAll.
func (suite *RemoteTestSuite) RunRemovalTests(t *testing.T) {
	t.Run("RemoveTree", suite.testRemoveTree)
	t.Run("RemoveObject", suite.testRemoveObject)
}

func (suite *RemoteTestSuite) testMetaSetGet(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	mustPut(t, r, p, []byte("x"))

	require.NoError(t, r.SetMeta(testContext(), p, "handle", "dir/x.txt"))

	value, err := r.GetMeta(testContext(), p, "handle")
	require.NoError(t, err)
	assert.Equal(t, "dir/x.txt", value)
}

func (suite *RemoteTestSuite) testMetaSetReplaces(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	mustPut(t, r, p, []byte("x"))

	require.NoError(t, r.SetMeta(testContext(), p, "handle", "old.txt"))
	require.NoError(t, r.SetMeta(testContext(), p, "handle", "new.txt"))

	value, err := r.GetMeta(testContext(), p, "handle")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", value)
}

func (suite *RemoteTestSuite) testMetaValueWithSpaces(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	mustPut(t, r, p, []byte("x"))

	require.NoError(t, r.SetMeta(testContext(), p, "handle", "my dir/x y.txt"))

	value, err := r.GetMeta(testContext(), p, "handle")
	require.NoError(t, err)
	assert.Equal(t, "my dir/x y.txt", value)
}

func (suite *RemoteTestSuite) testMetaMissingKey(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	mustPut(t, r, p, []byte("x"))

	_, err := r.GetMeta(testContext(), p, "handle")
	AssertErrorIs(t, remote.ErrNotFound, err)
}

func (suite *RemoteTestSuite) testMetaMissingObject(t *testing.T) {
	r, dir := suite.setup(t)

	_, err := r.GetMeta(testContext(), path.Join(dir, "nope"), "handle")
	AssertErrorIs(t, remote.ErrNotFound, err)
}

func (suite *RemoteTestSuite) testChecksum(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	data := []byte("hello\n")
	mustPut(t, r, p, data)

	digest, err := r.Checksum(testContext(), p)
	require.NoError(t, err)

	sum := md5.Sum(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
}

func (suite *RemoteTestSuite) testChecksumMissing(t *testing.T) {
	r, dir := suite.setup(t)

	_, err := r.Checksum(testContext(), path.Join(dir, "nope"))
	AssertErrorIs(t, remote.ErrNotFound, err)
}

func (suite *RemoteTestSuite) testStat(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")

	before := time.Now()
	mustPut(t, r, p, []byte("twelve bytes"))
	after := time.Now()

	st, err := r.Stat(testContext(), p)
	require.NoError(t, err)

	assert.Equal(t, int64(12), st.Size)
	assert.Equal(t, time.UTC, st.ModTime.Location(), "ModTime must be UTC")

	slack := time.Second
	if suite.MinuteResolution {
		slack = time.Minute
	}
	assert.False(t, st.ModTime.Before(before.Add(-slack)), "ModTime %v too early", st.ModTime)
	assert.False(t, st.ModTime.After(after.Add(slack)), "ModTime %v too late", st.ModTime)
}

func (suite *RemoteTestSuite) testStatMissing(t *testing.T) {
	r, dir := suite.setup(t)

	_, err := r.Stat(testContext(), path.Join(dir, "nope"))
	AssertErrorIs(t, remote.ErrNotFound, err)
}

func (suite *RemoteTestSuite) testRemoveTree(t *testing.T) {
	r, dir := suite.setup(t)
	tree := path.Join(dir, "tree")
	mustMakeCollection(t, r, tree)
	mustMakeCollection(t, r, path.Join(tree, "sub"))
	mustPut(t, r, path.Join(tree, "sub", "obj"), []byte("x"))
	mustPut(t, r, path.Join(dir, "sibling"), []byte("y"))

	require.NoError(t, r.RemoveAll(testContext(), tree))

	assertExists(t, r, tree, false)
	assertExists(t, r, path.Join(tree, "sub", "obj"), false)
	assertExists(t, r, path.Join(dir, "sibling"), true)

	entries, err := r.List(testContext(), dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"sibling": false}, names(entries))
}

func (suite *RemoteTestSuite) testRemoveObject(t *testing.T) {
	r, dir := suite.setup(t)
	p := path.Join(dir, "obj")
	mustPut(t, r, p, []byte("x"))

	require.NoError(t, r.RemoveAll(testContext(), p))
	assertExists(t, r, p, false)
}
