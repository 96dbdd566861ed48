package domain

import (
	"testing"

	"omegraph/testutil"
)

// TestDomainDoesNotImportInternal keeps the domain model free of graph,
// persistence and blob implementations.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must not depend on internal packages")
}

// TestDomainDoesNotReachStorageSDKs guards the transitive closure as well, so
// a helper package cannot smuggle a driver into the domain.
func TestDomainDoesNotReachStorageSDKs(t *testing.T) {
	if testing.Short() {
		t.Skip("go list in short mode")
	}
	testutil.AssertNoTransitiveDependency(t, ".", testutil.StorageSDKForbidden, "domain must stay storage agnostic")
}
