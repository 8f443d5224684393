package threads

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect struct {
	// driver is the database/sql driver name.
	driver string
	// positional is true for $1 style placeholders.
	positional bool
}

func dialectFor(name string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite":
		return dialect{driver: "sqlite"}, nil
	case "sqlite3":
		return dialect{driver: "sqlite3"}, nil
	case "postgres", "postgresql", "cockroach":
		return dialect{driver: "postgres", positional: true}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported thread store driver %q", name)
	}
}

func (d dialect) isSQLite() bool {
	return d.driver == "sqlite" || d.driver == "sqlite3"
}

// bind rewrites ? placeholders for positional dialects.
func (d dialect) bind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
