package versioning

// Set with -ldflags "-X" at build time
var (
	Version   string // semantic version of the release
	Commit    string // the git commit that the binary was built on
	BuildTime string // the timestamp of the build
)
