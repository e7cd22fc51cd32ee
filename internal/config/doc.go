// Package config loads, normalizes, and validates audioshelf configuration.
//
// Configuration lives in a TOML file (default ~/.config/audioshelf/config.toml)
// and may be supplemented by environment variables, which is how container
// deployments usually provide INPUT_DIR, OUTPUT_DIR, PUID and friends. Load
// applies defaults, decodes the file, expands paths, folds in the environment,
// and validates the result before returning it.
package config
