package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X coworkgate/internal/config.version=1.4.0 \
//	    -X coworkgate/internal/config.commit=$(git rev-parse --short HEAD)"
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
