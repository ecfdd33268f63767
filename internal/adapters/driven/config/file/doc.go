// Package file provides the filesystem-backed configuration adapters.
//
// Adapters:
//   - ConfigStore: TOML configuration in ~/.bilgi/config.toml
//   - PromptStore: user-editable prompts in ~/.bilgi/prompts, with built-in defaults
package file
