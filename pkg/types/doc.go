// Package types defines the TableCache and Backend interfaces, the watch-key
// variants, record snapshot and diff structures, and standard errors for the
// gridcache client library.
package types
