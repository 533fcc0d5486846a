// Package common is shared by the guard, status and updater services.
//
// Client queries a running home-guard over its status endpoint. The process
// helpers find other home-guard processes, either to refuse a second start or
// to stop old instances after an update.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
