// Package config loads trickle's TOML configuration.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/trickle/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// # TOML Format
//
//	[engine]
//	queue_capacity = 10
//	dispatch_interval = "250ms"
//	memory_floor = 8000
//	memory_limit = 0          # bytes; 0 defers to GOMEMLIMIT
//	chunk_size = 512
//	request_budget = 1024
//	document_budget = 1024
//	user_agent = "trickle/1.0"
//	routing = "kind"          # or "file-exists"
//	dial_timeout = "10s"
//
//	[storage]
//	root = "/"                # or "s3://bucket/prefix"
//	timeout = "30s"           # per remote storage call
//
//	[state]
//	dir = "~/.local/share/trickle"
//
//	[log]
//	level = "info"
//
//	[link]
//	mode = "interface"        # or "always"
//
// Every field is optional. Tilde expansion is performed on storage.root (when
// it is a local path) and state.dir.
//
// # Error Handling
//
// Load returns errors for unreadable files, malformed TOML and values that
// do not parse (durations, routing, log level, link mode). A missing config
// file is NOT an error.
package config
