// Package config provides configuration structures and utilities for
// noticescan. It defines the run options set from CLI flags and the YAML
// site registry describing each board.
package config
