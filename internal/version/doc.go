// Package version holds the home-guard build metadata.
//
// Version, Commit and BuildTime are set with -ldflags -X at release time.
// Compare orders two semantic versions for the self updater.
package version
