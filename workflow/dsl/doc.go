// Package dsl implements the small expression language used inside
// pipeline definitions: {{ }} templates over parameter and step-output
// bindings, pipe filters (default, upper, lower, length, first, last),
// and boolean step-gating conditions with comparisons, and/or/not,
// membership, and is none / is defined tests.
//
// The grammar is deliberately closed: a hand-written scanner and
// recursive-descent parser produce a typed AST evaluated against a
// binding map, so semantics stay exactly reproducible without pulling
// in a general templating engine.
package dsl
