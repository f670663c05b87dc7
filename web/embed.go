// Package web embeds the HTML templates and static assets of the UI.
package web

import "embed"

// FS holds templates/*.html and static/*.
//
//go:embed templates static
var FS embed.FS
