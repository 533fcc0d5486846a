// Package packager writes the update manifest consumed by the updater.
package packager
