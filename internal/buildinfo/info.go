package buildinfo

import "runtime"

// Set via -ldflags "-X github.com/gitdm/gitdm/internal/buildinfo.Version=...".
var (
	Version    = "v0.1.0"
	CommitHash = "unknown"
)

type Info struct {
	About      string `json:"about,omitempty"`
	Service    string `json:"service,omitempty"`
	Version    string `json:"version,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
}

func GetBuildInfo() Info {
	return Info{
		About:      "https://github.com/gitdm/gitdm",
		Service:    "gitdm",
		Version:    Version,
		CommitHash: CommitHash,
		GoVersion:  runtime.Version(),
	}
}

// UserAgent identifies gitdm in outgoing requests.
func UserAgent() string {
	return "gitdm/" + Version + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
