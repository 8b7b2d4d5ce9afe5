package web

import "embed"

// FS contains the embedded inspector page.
//
//go:embed *.html
var FS embed.FS
