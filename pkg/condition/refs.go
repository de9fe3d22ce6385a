package condition

// ReferencedFlags extracts every flags.<name> and flags["name"] token in
// the expression, deduplicated, in order of first appearance. An
// expression that cannot be tokenized yields nothing.
func ReferencedFlags(expression string) []string {
	tokens, _ := tokenize(expression)
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for i := 0; i+2 < len(tokens); i++ {
		if tokens[i].kind != tokIdent || tokens[i].text != "flags" {
			continue
		}
		op := tokens[i+1]
		switch {
		case op.kind == tokOp && op.text == "." && tokens[i+2].kind == tokIdent:
			add(tokens[i+2].text)
		case op.kind == tokOp && op.text == "[" && tokens[i+2].kind == tokString &&
			i+3 < len(tokens) && tokens[i+3].kind == tokOp && tokens[i+3].text == "]":
			add(tokens[i+2].text)
		}
	}
	return out
}
