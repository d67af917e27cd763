// Package service implements resources: create, read, update, patch and
// remove over one model of a store, driven by REST-style query objects.
//
// Every call compiles its query with package query, decides how the
// resource id is resolved (see IdentityResolution) and then runs the store
// primitives it needs. Read-then-mutate and mutate-then-read pairs always
// run in one transaction so they observe the same snapshot.
//
// The store's bulk primitives report only how many rows they touched, not
// which. Bulk patch therefore re-reads the rows that match the filter and
// the patched values after the update, and bulk remove reads the matching
// rows before deleting them. Writers that interleave with those pairs can
// make the returned set differ from the rows actually changed; no locking
// layer prevents that.
package service
