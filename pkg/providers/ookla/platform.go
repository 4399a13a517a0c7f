package ookla

import (
	"fmt"
	"runtime"
	"strings"
)

// ReleaseVersion is the CLI release installed when no binary is present.
const ReleaseVersion = "1.2.0"

const downloadBase = "https://install.speedtest.net/app/cli/ookla-speedtest-"

// archives maps "<goos>_<goarch>" to the release archive suffix.
var archives = map[string]string{
	"windows_amd64": "win64.zip",
	"linux_amd64":   "linux-x86_64.tgz",
	"linux_386":     "linux-i386.tgz",
	"linux_arm64":   "linux-aarch64.tgz",
	"linux_arm":     "linux-armhf.tgz",
	"darwin_amd64":  "macosx-universal.tgz",
	"darwin_arm64":  "macosx-universal.tgz",
}

// Platform returns the key used for download URLs and pinned checksums.
func Platform() string {
	return runtime.GOOS + "_" + runtime.GOARCH
}

// DownloadURL returns the release archive for platform and version.
func DownloadURL(platform, version string) (string, error) {
	suffix, ok := archives[platform]
	if !ok {
		return "", fmt.Errorf("no speedtest binary available for %s", platform)
	}
	return downloadBase + version + "-" + suffix, nil
}

// BinaryName returns the executable's name on platform.
func BinaryName(platform string) string {
	if strings.HasPrefix(platform, "windows_") {
		return "speedtest.exe"
	}
	return "speedtest"
}
