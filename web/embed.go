// Package web holds the panel's templates and browser assets.
package web

import "embed"

// Templates holds the layouts, full pages and the partials reused as fragments.
//
//go:embed templates/layouts/*.html templates/pages/*.html templates/partials/*.html
var Templates embed.FS

// Static holds the stylesheet and the fragment/navigation script, served under /static/.
//
//go:embed static/css static/js
var Static embed.FS
