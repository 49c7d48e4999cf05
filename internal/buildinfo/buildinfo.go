// Package buildinfo carries version data stamped in with -ldflags -X.
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// UserAgent identifies outbound HTTP calls made by the service.
func UserAgent() string {
	return "influencegen/" + Version
}
