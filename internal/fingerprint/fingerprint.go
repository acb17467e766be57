// Package fingerprint generates, persists and hands out synthetic browser identities.
package fingerprint

import (
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// GPU is a WebGL vendor/renderer pair as reported by WEBGL_debug_renderer_info.
type GPU struct {
	Vendor   string `json:"vendor"`
	Renderer string `json:"renderer"`
}

// Hardware describes navigator-level device capabilities.
type Hardware struct {
	DeviceMemory        int `json:"deviceMemory"`
	HardwareConcurrency int `json:"hardwareConcurrency"`
	MaxTouchPoints      int `json:"maxTouchPoints"`
}

// Screen describes window.screen and devicePixelRatio.
type Screen struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	ColorDepth int     `json:"colorDepth"`
	PixelRatio float64 `json:"pixelRatio"`
}

// Plugin is one navigator.plugins entry.
type Plugin struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// Noise seeds the per-identity perturbation applied to canvas and audio readbacks.
type Noise struct {
	Canvas int64 `json:"canvas"`
	Audio  int64 `json:"audio"`
}

// Fingerprint is an immutable synthetic identity. ID is derived from every other field.
type Fingerprint struct {
	ID           string   `json:"id"`
	UserAgent    string   `json:"userAgent"`
	Platform     string   `json:"platform"`
	GPU          GPU      `json:"gpu"`
	Hardware     Hardware `json:"hardware"`
	Fonts        []string `json:"fonts"`
	Plugins      []Plugin `json:"plugins"`
	Screen       Screen   `json:"screen"`
	Languages    []string `json:"languages"`
	Timezone     string   `json:"timezone"`
	Noise        Noise    `json:"noise"`
	WebRTCPolicy string   `json:"webrtcPolicy"`
}

// idNamespace scopes fingerprint ids so they never collide with other name-based UUIDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("mimic.fingerprint"))

var canonicalJSON = jsoniter.Config{SortMapKeys: true, EscapeHTML: false, UseNumber: true}.Froze()

// Canonical returns the sorted-key JSON encoding of every field except ID.
func (f Fingerprint) Canonical() ([]byte, error) {
	f.ID = ""
	raw, err := canonicalJSON.Marshal(f)
	if err != nil {
		return nil, err
	}
	// Round-trip through a map so object keys are emitted in sorted order
	// regardless of struct field order.
	var tree map[string]interface{}
	if err := canonicalJSON.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	delete(tree, "id")
	return canonicalJSON.Marshal(tree)
}

// ComputeID returns the content-derived identifier of f.
func ComputeID(f Fingerprint) (string, error) {
	data, err := f.Canonical()
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize fingerprint: %w", err)
	}
	return uuid.NewSHA1(idNamespace, data).String(), nil
}

// withID returns f with its ID set from its content.
func withID(f Fingerprint) Fingerprint {
	id, err := ComputeID(f)
	if err != nil {
		// Only plain data types are involved, so encoding cannot fail.
		panic(err)
	}
	f.ID = id
	return f
}

// Default is the fixed identity used when the catalog has nothing to offer.
func Default() Fingerprint {
	return withID(Fingerprint{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:  "Win32",
		GPU: GPU{
			Vendor:   "Google Inc. (Intel)",
			Renderer: "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)",
		},
		Hardware:     Hardware{DeviceMemory: 8, HardwareConcurrency: 8, MaxTouchPoints: 0},
		Fonts:        []string{"Arial", "Calibri", "Cambria", "Consolas", "Segoe UI", "Tahoma", "Times New Roman", "Verdana"},
		Plugins:      chromePlugins,
		Screen:       Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1},
		Languages:    []string{"en-US", "en"},
		Timezone:     "America/New_York",
		Noise:        Noise{Canvas: 1, Audio: 1},
		WebRTCPolicy: "default_public_interface_only",
	})
}
