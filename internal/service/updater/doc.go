// Package updater replaces the home-guard binary with the release published
// in the update folder.
//
// The folder holds a YAML manifest (VersionFilename) with the release version
// and the SHA-512 checksum of every platform artifact. The artifact is applied
// with go-update, which verifies the checksum before swapping files.
package updater
