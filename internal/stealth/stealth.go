// Package stealth renders the evasion payload injected into every new
// document of a session. The payload is parameterized by a fingerprint so
// the values a page can read agree with the HTTP-level identity.
package stealth

import (
	_ "embed"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/mimic/internal/fingerprint"
)

//go:embed evasions.js
var evasionsTemplate string

const personaPlaceholder = "__MIMIC_PERSONA__"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persona holds the identity values that are applied through the DevTools
// protocol rather than through script.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
	Scale     float64
}

// PersonaFor derives the protocol-level persona of a fingerprint.
func PersonaFor(fp fingerprint.Fingerprint) Persona {
	p := Persona{
		UserAgent: fp.UserAgent,
		Platform:  fp.Platform,
		Languages: fp.Languages,
		Timezone:  fp.Timezone,
		Width:     fp.Screen.Width,
		Height:    fp.Screen.Height,
		Scale:     fp.Screen.PixelRatio,
	}
	if len(p.Languages) == 0 {
		p.Languages = []string{"en-US", "en"}
	}
	p.Locale = p.Languages[0]
	if p.Scale <= 0 {
		p.Scale = 1
	}
	return p
}

// AcceptLanguage builds an Accept-Language header with descending q-values.
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := make([]string, 0, len(languages))
	q := 10
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q--
		if q < 1 {
			q = 1
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, q))
	}
	return strings.Join(parts, ",")
}

// HeapProfile is what performance.memory reports.
type HeapProfile struct {
	JSHeapSizeLimit int64 `json:"jsHeapSizeLimit"`
	TotalJSHeapSize int64 `json:"totalJSHeapSize"`
	UsedJSHeapSize  int64 `json:"usedJSHeapSize"`
}

// HeapFor derives a stable heap profile from the fingerprint. Chrome caps the
// heap at roughly 2 GiB on devices reporting at least 4 GB of memory and at
// about 1 GiB below that.
func HeapFor(fp fingerprint.Fingerprint) HeapProfile {
	limit := int64(2172649472)
	if fp.Hardware.DeviceMemory > 0 && fp.Hardware.DeviceMemory < 4 {
		limit = 1136000000
	}
	seed := fp.Noise.Audio
	if seed < 0 {
		seed = -seed
	}
	const mib = 1 << 20
	used := 12*mib + seed%(36*mib)
	total := used + 4*mib + (seed/7)%(12*mib)
	return HeapProfile{JSHeapSizeLimit: limit, TotalJSHeapSize: total, UsedJSHeapSize: used}
}

// payload is the object the script reads its values from.
type payload struct {
	UserAgent    string               `json:"userAgent"`
	Platform     string               `json:"platform"`
	Languages    []string             `json:"languages"`
	GPU          fingerprint.GPU      `json:"gpu"`
	Hardware     fingerprint.Hardware `json:"hardware"`
	Screen       fingerprint.Screen   `json:"screen"`
	Plugins      []fingerprint.Plugin `json:"plugins"`
	Fonts        []string             `json:"fonts"`
	Noise        fingerprint.Noise    `json:"noise"`
	WebRTCPolicy string               `json:"webrtcPolicy"`
	Memory       HeapProfile          `json:"memory"`
}

// Script renders the evasion payload for fp.
func Script(fp fingerprint.Fingerprint) (string, error) {
	p := PersonaFor(fp)
	pl := payload{
		UserAgent:    p.UserAgent,
		Platform:     p.Platform,
		Languages:    p.Languages,
		GPU:          fp.GPU,
		Hardware:     fp.Hardware,
		Screen:       fp.Screen,
		Plugins:      fp.Plugins,
		Fonts:        fp.Fonts,
		Noise:        fp.Noise,
		WebRTCPolicy: fp.WebRTCPolicy,
		Memory:       HeapFor(fp),
	}
	if pl.Plugins == nil {
		pl.Plugins = []fingerprint.Plugin{}
	}
	if pl.Fonts == nil {
		pl.Fonts = []string{}
	}
	if pl.Screen.PixelRatio <= 0 {
		pl.Screen.PixelRatio = 1
	}
	// Noise seeds feed a 32-bit PRNG in the page.
	pl.Noise.Canvas &= 0x7fffffff
	pl.Noise.Audio &= 0x7fffffff

	raw, err := json.Marshal(pl)
	if err != nil {
		return "", fmt.Errorf("encoding stealth persona: %w", err)
	}
	return strings.Replace(evasionsTemplate, personaPlaceholder, string(raw), 1), nil
}
