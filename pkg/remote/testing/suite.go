// Package testing provides a conformance suite for remote.Remote
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dtool-irods/pkg/remote"
)

// RemoteTestSuite is a test suite for remote.Remote implementations.
// It tests the interface contract, not implementation details, making it
// reusable across backends (icommands, badger, S3).
//
// Usage:
//
//	func TestMyRemote(t *testing.T) {
//	    suite := &remotetesting.RemoteTestSuite{
//	        NewRemote: func(t *testing.T) remote.Remote {
//	            return myremote.New()
//	        },
//	        Base: "/tempZone/home/rods",
//	    }
//	    suite.Run(t)
//	}
type RemoteTestSuite struct {
	// NewRemote creates a fresh Remote for each test. This ensures test
	// isolation.
	NewRemote func(t *testing.T) remote.Remote

	// Base is an existing collection of a fresh Remote. Every test works in
	// its own sub-collection of Base.
	Base string

	// MinuteResolution is set for backends that only report modification
	// times to the minute.
	MinuteResolution bool
}

// Run executes all tests in the suite.
func (suite *RemoteTestSuite) Run(t *testing.T) {
	t.Run("Collections", suite.RunCollectionTests)
	t.Run("Objects", suite.RunObjectTests)
	t.Run("Metadata", suite.RunMetadataTests)
	t.Run("Properties", suite.RunPropertyTests)
	t.Run("Removal", suite.RunRemovalTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
