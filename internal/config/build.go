package config

// Build metadata set at link time, for example:
//
//	go build -ldflags "-X scholarwatch/internal/config.version=$(git describe --tags) \
//	    -X scholarwatch/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build as "version (commit)" for startup logs.
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ")"
}
