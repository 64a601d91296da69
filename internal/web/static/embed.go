// Package static embeds the live attendance dashboard page.
package static

import (
	"embed"
	"io/fs"
)

//go:embed dist/index.html
var dashboard embed.FS

// Dashboard returns the dashboard files rooted at the page directory.
func Dashboard() (fs.FS, error) {
	return fs.Sub(dashboard, "dist")
}
