// Package shared holds helpers used by more than one crunch package.
//
// The testutil subpackage provides measurement file fixtures and a capturing
// slog handler for tests:
//
//	func TestSomething(t *testing.T) {
//	    dir := t.TempDir()
//	    testutil.WriteFile(t, dir, "VT2816A_m2V5_R10V_1000x.txt", testutil.HierarchicalBody)
//
//	    logger, handler := testutil.NewTestLogger(t)
//	    // ... run code with logger
//	    testutil.AssertLogAttr(t, handler, "file", "VT2816A_m2V5_R10V_1000x.txt")
//	}
//
// Nothing in this tree imports business packages.
package shared
