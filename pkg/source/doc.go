// Package source acquires a recipe's upstream source tree.
//
// Acquisition is fetch, then patch: a [Fetcher] materializes the upstream
// at a pinned revision (with its submodules), then every patch of the
// recipe is applied in order with [Apply]. The first failing patch aborts
// the acquisition with a [*PatchError] that names the patch and says why it
// did not apply.
//
// The [Acquirer] stages all of this in a temporary directory next to the
// destination and renames it into place only when every patch applied, so
// a cancelled or failed acquisition never leaves a half-patched tree behind.
// Successful acquisitions are remembered in a cache keyed by upstream URL,
// revision, submodule depth and the digests of the ordered patches; a later
// acquisition with the same key finds the tree intact and skips all work.
package source
