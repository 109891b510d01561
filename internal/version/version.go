package version

// Set at build time via -ldflags "-X .../internal/version.version=v1.2.3".
var version = ""

func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}
