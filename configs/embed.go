// Package configs provides embedded configuration templates for kb.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution (go install, binary releases). `kb init` writes the
// user template out as the user config; no command writes the project
// template.
//
// Configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/localkb/config.yaml)
//  3. Project config (.localkb.yaml)
//  4. Environment variables (KB_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration,
// created by `kb init` at ~/.config/localkb/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for per-folder configuration
// (.localkb.yaml alongside a documents tree that needs its own tuning,
// such as search weights and workers, independent of the machine defaults).
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
