/*
Package dsl provides a fluent builder for constructing stories in Go.

It is an alternative to YAML or JSON story files, useful for generated
stories, tests and IDE autocompletion.

Example usage:

	b := dsl.New()

	b.Add("start").
		Text("A locked door.").
		Choice("Open it", "vault").Requires("hasKey", true).
		Choice("Search the room", "start").Sets("hasKey", true).When("!flags.hasKey")

	b.Add("vault").
		Text("Gold everywhere.")

	loader, err := b.Build()
	// ... pass loader to fable.NewFromLoader(...)
*/
package dsl
