// Package validation decides whether a selected choice may be executed.
//
// A Pipeline runs an ordered list of named rules, lowest priority first,
// and stops at the first failure. The standard rules check, in order, that
// the choice belongs to the current node, that flag requirements hold, that
// the choice is enabled, that time windows are open and that the reader
// carries the required inventory.
package validation
