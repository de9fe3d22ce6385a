package domain

// Actions label state mutations. The undo controller tracks a configurable
// subset of them and autosave maps some of them to triggers.
const (
	ActionChoice   = "choice"
	ActionFlag     = "flag"
	ActionReset    = "reset"
	ActionLoad     = "load"
	ActionNavigate = "navigate"
	ActionRestore  = "restore"
	ActionUndo     = "undo"
	ActionRedo     = "redo"
)
