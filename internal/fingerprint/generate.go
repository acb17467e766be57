package fingerprint

import (
	"fmt"
	"math/rand"
	"sort"
)

// maxAttemptsPerEntry bounds Generate when the combinatorial space is nearly exhausted.
const maxAttemptsPerEntry = 20

// Generate samples up to n distinct fingerprints. Entries with identical content
// collapse to one id, so the result may be shorter than n only when the sampling
// space is exhausted.
func Generate(rng *rand.Rand, n int) []Fingerprint {
	byID := make(map[string]Fingerprint, n)
	for attempts := 0; len(byID) < n && attempts < n*maxAttemptsPerEntry; attempts++ {
		f := sample(rng)
		byID[f.ID] = f
	}
	out := make([]Fingerprint, 0, len(byID))
	for _, f := range byID {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sample(rng *rand.Rand) Fingerprint {
	family := osFamilies[rng.Intn(len(osFamilies))]
	loc := locales[rng.Intn(len(locales))]

	f := Fingerprint{
		UserAgent: fmt.Sprintf(pick(rng, family.uaFormats), pick(rng, chromeVersions)),
		Platform:  family.platform,
		GPU:       family.gpus[rng.Intn(len(family.gpus))],
		Hardware: Hardware{
			DeviceMemory:        pick(rng, deviceMemories),
			HardwareConcurrency: pick(rng, hardwareConcurrencies),
			MaxTouchPoints:      pick(rng, family.touch),
		},
		Fonts:        sampleSubset(rng, family.fonts, len(family.fonts)*2/3),
		Plugins:      chromePlugins,
		Screen:       screens[rng.Intn(len(screens))],
		Languages:    append([]string(nil), loc.languages...),
		Timezone:     pick(rng, loc.timezones),
		Noise:        Noise{Canvas: rng.Int63(), Audio: rng.Int63()},
		WebRTCPolicy: pick(rng, webrtcPolicies),
	}
	return withID(f)
}

func pick[T any](rng *rand.Rand, pool []T) T {
	return pool[rng.Intn(len(pool))]
}

// sampleSubset returns between atLeast and len(pool) entries of pool, preserving pool order.
func sampleSubset(rng *rand.Rand, pool []string, atLeast int) []string {
	if atLeast > len(pool) {
		atLeast = len(pool)
	}
	k := atLeast + rng.Intn(len(pool)-atLeast+1)
	idx := rng.Perm(len(pool))[:k]
	sort.Ints(idx)
	out := make([]string, k)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}
