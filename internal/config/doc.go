// Package config defines the home-guard settings and provides helpers to
// load, validate and save them in YAML format, and to watch the file for
// changes to the trusted device list.
package config
