package converter

import (
	"fmt"
	"runtime"
)

const releaseBase = "https://github.com/compomics/ThermoRawFileParserGUI/releases/download/v1.0.0/"

// releaseArchives maps GOOS/GOARCH to the release asset carrying a
// self-contained build.
var releaseArchives = map[Platform]string{
	{OS: "linux", Arch: "amd64"}:   "ThermoRawFileParser_Linux_64bit.zip",
	{OS: "windows", Arch: "amd64"}: "ThermoRawFileParser_Windows_64bit.zip",
	{OS: "darwin", Arch: "amd64"}:  "ThermoRawFileParser_MacOS_64bit.zip",
	{OS: "darwin", Arch: "arm64"}:  "ThermoRawFileParser_MacOS_64bit.zip",
}

type Platform struct {
	OS   string
	Arch string
}

func HostPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// ExecutableName returns the file name the converter has on goos.
func ExecutableName(bin, goos string) string {
	if goos == "windows" {
		return bin + ".exe"
	}
	return bin
}

// DownloadURL returns the release archive for p.
func DownloadURL(p Platform) (string, error) {
	asset, ok := releaseArchives[p]
	if !ok {
		return "", fmt.Errorf("no ThermoRawFileParser release for platform %s", p)
	}
	return releaseBase + asset, nil
}
