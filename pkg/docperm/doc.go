// Package docperm mutates the permission grants attached to documents.
//
// Every change request is gated on the caller holding OWNER of the target
// document. A request on a folder may cascade: CHANGES_ONLY re-applies the
// same change set to every descendant the caller owns, while ALL replaces
// each descendant's grants with the folder's resulting permission map.
// Failures on individual (document, user, permission) rows are logged and
// skipped, so a batch can partially apply; nothing is rolled back.
//
// Each mutation fires a change event consumed by the cache layer.
package docperm
