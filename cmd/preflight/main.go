// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))
	apiAddr := strings.TrimSpace(os.Getenv("ADDR"))
	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if admin == "" {
		fail("ADMIN_API_KEYS is empty (mutating routes will be open to anyone).")
	}
	if pub == "" {
		warn("PUBLIC_API_KEYS is empty — read routes fall back to admin keys only.")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if apiAddr == "" {
		warn("ADDR is empty; the default :8080 will be used.")
	} else {
		ok("ADDR=" + apiAddr)
	}

	switch driver {
	case "", "memory":
		warn("DATABASE_DRIVER is memory — monitors and logs vanish on restart.")
	case "sqlite":
		if db == "" {
			warn("DATABASE_URL empty — sqlite will default to ./sitewatch.db")
		} else {
			ok("sqlite file: " + db)
		}
	case "postgres":
		if db == "" {
			fail("DATABASE_DRIVER=postgres but DATABASE_URL is empty.")
		}
		ok("DATABASE_URL present")
	default:
		fail("unknown DATABASE_DRIVER " + driver + " (want memory, sqlite or postgres)")
	}

	ok("preflight passed")
}
