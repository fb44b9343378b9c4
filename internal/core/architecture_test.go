package core

import (
	"testing"

	"shelterhub/testutil"
)

func TestCoreDoesNotImportAdapters(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImportForbidden, "the service layer is driven by adapters, never the reverse")
}
