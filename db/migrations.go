// Package db carries the SQL schema migrations embedded into every binary.
package db

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns dir when it exists on disk, otherwise the embedded set.
func Migrations(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
