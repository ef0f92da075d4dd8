// Cachegate is a caching reverse proxy for a single origin server, with a
// configurable policy for how the Authorization header affects caching.
//
// Configuration comes from built-in defaults, an optional YAML file and the
// environment (PORT, AEM_HOST, AEM_PORT, ALLOW_AUTHORIZED, CACHE_TTL_MS,
// BYPASS_CACHE_IF_AUTH), in that order of precedence.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
)

// version is set with -ldflags "-X main.version=..." in release builds.
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CACHEGATE_CONFIG"), "optional YAML config file (env CACHEGATE_CONFIG)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("cachegate", resolvedVersion())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "cachegate:", err)
		os.Exit(1)
	}
}

// resolvedVersion falls back to the module version recorded by
// `go install` when no version was linked in.
func resolvedVersion() string {
	if version != "dev" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}
