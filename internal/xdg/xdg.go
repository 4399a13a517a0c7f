// Package xdg resolves per-user directories following the XDG base
// directory layout on POSIX systems and the AppData layout on Windows.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// AppName is appended to the resolved base directories.
const AppName = "netvelocimeter"

type location struct {
	env      string
	fallback string
}

// Category is a kind of per-user directory.
type Category struct {
	name    string
	windows location
	posix   location
}

var (
	Data = Category{"DATA",
		location{"LOCALAPPDATA", `~\AppData\Local`},
		location{"XDG_DATA_HOME", "${HOME}/.local/share"}}
	Config = Category{"CONFIG",
		location{"APPDATA", `~\AppData\Roaming`},
		location{"XDG_CONFIG_HOME", "${HOME}/.config"}}
	State = Category{"STATE",
		location{"LOCALAPPDATA", `~\AppData\Local`},
		location{"XDG_STATE_HOME", "${HOME}/.local/state"}}
	Bin = Category{"BIN",
		location{"LOCALAPPDATA", `~\AppData\Local`},
		location{"XDG_BIN_HOME", "${HOME}/.local/bin"}}
	Cache = Category{"CACHE",
		location{"TEMP", `${LOCALAPPDATA}\Temp`},
		location{"XDG_CACHE_HOME", "${HOME}/.cache"}}
)

// goos is swapped in tests.
var goos = runtime.GOOS

// Resolve returns the category's absolute base directory joined with elem.
func (c Category) Resolve(elem ...string) (string, error) {
	loc := c.posix
	if goos == "windows" {
		loc = c.windows
	}

	raw, ok := os.LookupEnv(loc.env)
	if !ok || raw == "" {
		raw = loc.fallback
	}
	base := expand(raw)
	if base == "" || !isAbs(base) {
		return "", fmt.Errorf("could not resolve base path for %s", c.name)
	}
	return filepath.Join(append([]string{base}, elem...)...), nil
}

// ConfigRoot is the default directory for configuration and the ledger.
func ConfigRoot() (string, error) { return Config.Resolve(AppName) }

// BinRoot is the default directory for provider binaries.
func BinRoot() (string, error) { return Bin.Resolve(AppName) }

// DataRoot is the default directory for measurement history.
func DataRoot() (string, error) { return Data.Resolve(AppName) }

func expand(p string) string {
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		p = home + p[1:]
	}
	return p
}

// isAbs also accepts Windows drive paths when tests pretend to be Windows.
func isAbs(p string) bool {
	if filepath.IsAbs(p) {
		return true
	}
	return goos == "windows" && len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}
