// Package decl scans marked wrapper declarations out of C header text.
//
// A declaration occupies a single line:
//
//	int generated_co_wrapper bdrv_check(BlockDriverState *bs, BdrvCheckResult *res, BdrvCheckMode fix);
//
// The line grammar is matched with participle. The parameter list is then
// split on commas and each fragment decomposed into a type prefix and a
// lowercase identifier, which is enough for the flat signatures wrappers
// are declared with.
package decl
