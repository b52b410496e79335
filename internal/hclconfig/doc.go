// Package hclconfig implements config.Loader for HCL files.
//
// Every .hcl file found under the given paths is parsed and decoded with
// gohcl against a shared evaluation context, then merged into a single
// config.Model. Expressions may reference:
//
//	env.NAME           environment variables
//	defaults.<attr>    the built-in scheduler defaults
//
// and call min, max, upper, lower, format and concat.
package hclconfig
