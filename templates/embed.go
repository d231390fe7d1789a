// Package templates embeds the default .taskpath/config.yaml and a small example project.
package templates

import "embed"

//go:embed config.yaml example
var FS embed.FS
