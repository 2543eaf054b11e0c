package version

// Set at build time via -ldflags "-X github.com/rowjay/s3backup/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
