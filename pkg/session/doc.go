// Package session layers a unit-of-work on top of the tracking factory:
// track a batch of entities, inspect or revert their pending changes,
// and commit the dirty ones as change sets into a store.
package session
