// Package config loads, normalizes, and validates camliup configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and then applies CAMLIUP_* environment
// overrides such as CAMLIUP_SERVER and CAMLIUP_PASSWORD. The Config type
// centralizes the blob server address, the upload batch threshold, and the
// data directory that holds the journal, lock, socket, and logs.
//
// The server address is not validated here; enqueue and resume reject an
// unusable address when they run.
package config
