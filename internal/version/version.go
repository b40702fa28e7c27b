package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is set via ldflags:
	// go build -ldflags "-X github.com/r9s-ai/vidrelay/internal/version.Version=v0.3.0"
	Version = "dev"

	// Commit is the git commit hash.
	Commit = "unknown"

	// BuildDate is the build date in RFC3339 format.
	BuildDate = "unknown"
)

// Info holds build information reported by -V and GET /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("vidrelay %s (commit %s, built %s, %s %s)",
		i.Version, Short(), i.BuildDate, i.GoVersion, i.Platform)
}

// Short returns the abbreviated commit, or "unknown".
func Short() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
