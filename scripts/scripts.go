// Package scripts ships the seed documents and server-side procedures the
// blog collection is bootstrapped from.
package scripts

import "embed"

// FS holds every bootstrap script, named <kind>.<id>.<ext>.
//
//go:embed *.json *.lua
var FS embed.FS
