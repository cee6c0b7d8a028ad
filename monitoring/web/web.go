// Package web holds the static dashboard page of the monitoring tool.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed dist/*
var staticAssets embed.FS

// GetAssets returns the static assets of the dashboard.
func GetAssets() http.FileSystem {
	subFS, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}
