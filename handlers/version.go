package handlers

import (
	"net/http"
	"os"
	"strings"
	"sync"
)

// Version is set at build time with -ldflags "-X cinegenio/handlers.Version=...".
var Version string

var versionOnce sync.Once

type VersionResponse struct {
	Version string `json:"version"`
}

// BackendVersion returns the build version, falling back to version.txt.
func BackendVersion() string {
	versionOnce.Do(func() {
		if Version != "" {
			return
		}
		for _, path := range []string{"version.txt", "/app/version.txt"} {
			if data, err := os.ReadFile(path); err == nil {
				Version = strings.TrimSpace(string(data))
				return
			}
		}
		Version = "dev"
	})
	return Version
}

func GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: BackendVersion()})
}
