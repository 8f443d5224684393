//go:build cgo

package threads

import (
	_ "github.com/mattn/go-sqlite3"
)
