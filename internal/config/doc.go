// Package config defines the format-agnostic configuration model of a
// scheduler node, along with the Loader interface that concrete formats
// (HCL, see package hclconfig) implement.
//
// The `config.Model` is the single source of truth for the `app` and `sim`
// packages. Defaults live here so every loader applies the same ones.
package config
