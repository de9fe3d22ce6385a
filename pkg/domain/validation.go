package domain

// ValidationResult is produced by each validation rule and by the pipeline.
type ValidationResult struct {
	Valid            bool           `json:"isValid"`
	Rule             string         `json:"rule,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	FailedConditions []string       `json:"failedConditions,omitempty"`
	SuggestedChoices []Choice       `json:"suggestedChoices,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Valid is the passing result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid builds a failing result.
func Invalid(reason string, failed ...string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason, FailedConditions: failed}
}

// ChoiceView is a visible choice annotated with whether it can currently be
// executed. Index is the value MakeChoice expects.
type ChoiceView struct {
	Index     int    `json:"index"`
	Choice    Choice `json:"choice"`
	Available bool   `json:"available"`
	Rule      string `json:"rule,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
