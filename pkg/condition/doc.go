/*
Package condition evaluates the boolean expressions that gate choice visibility.

Expressions are written in a small JavaScript-flavoured language and can read
four roots: flags, state, timestamp and customData.

	flags.hasKey && flags.gold >= 10
	flags["lantern-lit"] || state.history.length > 3
	flags.mood === "angry" ? flags.courage > 5 : true

The language is interpreted, never executed by the host runtime. Any
expression that mentions a denied identifier (constructor, eval, process,
globalThis, ...) is rejected before it is parsed. Function calls and
assignments do not exist in the grammar.

Compiled expressions are cached by their exact text in a bounded cache that
evicts the oldest entry. Hosts that want their own language can install a
custom evaluator which then takes precedence for every expression.
*/
package condition
