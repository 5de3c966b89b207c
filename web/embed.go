// Package web holds the HTML views rendered by the page handlers.
package web

import (
	"embed"
	"io/fs"
)

//go:embed views/*.html
var files embed.FS

// Views returns the view templates rooted at the views directory.
func Views() fs.FS {
	sub, err := fs.Sub(files, "views")
	if err != nil {
		// The embed pattern guarantees the directory exists
		panic(err)
	}
	return sub
}
