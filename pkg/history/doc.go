// Package history provides linear undo/redo over engine state and a
// throttled autosave that writes through the checkpoint manager.
//
// Every operation reports a result value instead of returning an error, so
// an empty stack or a throttled autosave never interrupts the caller.
package history
