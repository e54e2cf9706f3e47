// Package config loads and validates the immutable Unreeled configuration:
// a TOML file merged over repository defaults, with API credentials overlaid
// from environment variables. A missing credential disables the matching
// source; it is never a startup error.
package config
