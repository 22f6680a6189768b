// Package web embeds the single-page chat UI.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var content embed.FS

// Assets returns the UI files rooted at the static directory.
func Assets() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}
