// Package ui embeds the HTML templates and static assets served by the web package.
package ui

import "embed"

//go:embed templates static
var FS embed.FS
