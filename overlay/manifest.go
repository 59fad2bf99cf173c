package overlay

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is a SteamVR .vrmanifest registering the program as a dashboard
// overlay so the compositor can autostart it.
type Manifest struct {
	Applications []ManifestApplication `json:"applications"`
}

type ManifestApplication struct {
	AppKey             string                        `json:"app_key"`
	LaunchType         string                        `json:"launch_type"`
	BinaryPathWindows  string                        `json:"binary_path_windows,omitempty"`
	BinaryPathLinux    string                        `json:"binary_path_linux,omitempty"`
	IsDashboardOverlay bool                          `json:"is_dashboard_overlay"`
	Strings            map[string]ManifestAppStrings `json:"strings"`
}

type ManifestAppStrings struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewManifest describes one binary-launched dashboard overlay.
func NewManifest(appKey, name, description, binaryPath, goos string) Manifest {
	app := ManifestApplication{
		AppKey:             appKey,
		LaunchType:         "binary",
		IsDashboardOverlay: true,
		Strings: map[string]ManifestAppStrings{
			"en_us": {Name: name, Description: description},
		},
	}
	if goos == "windows" {
		app.BinaryPathWindows = binaryPath
	} else {
		app.BinaryPathLinux = binaryPath
	}
	return Manifest{Applications: []ManifestApplication{app}}
}

func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
