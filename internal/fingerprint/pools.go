package fingerprint

// osFamily groups the signals that must agree with each other for one operating system.
type osFamily struct {
	name      string
	platform  string
	uaFormats []string // %s receives the Chrome version
	gpus      []GPU
	fonts     []string
	touch     []int
}

var chromeVersions = []string{
	"122.0.6261.129", "123.0.6312.122", "124.0.6367.207",
	"125.0.6422.142", "126.0.6478.127", "127.0.6533.100",
}

var osFamilies = []osFamily{
	{
		name:     "windows",
		platform: "Win32",
		uaFormats: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		},
		gpus: []GPU{
			{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 SUPER Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Series Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		},
		fonts: []string{
			"Arial", "Arial Black", "Bahnschrift", "Calibri", "Cambria", "Candara", "Comic Sans MS",
			"Consolas", "Constantia", "Corbel", "Courier New", "Ebrima", "Franklin Gothic Medium",
			"Gabriola", "Georgia", "Impact", "Lucida Console", "Microsoft Sans Serif", "Palatino Linotype",
			"Segoe UI", "Sitka Text", "Sylfaen", "Tahoma", "Times New Roman", "Trebuchet MS", "Verdana",
		},
		touch: []int{0, 0, 0, 10},
	},
	{
		name:     "macos",
		platform: "MacIntel",
		uaFormats: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		},
		gpus: []GPU{
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M1, OpenGL 4.1)"},
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M2, OpenGL 4.1)"},
			{"Google Inc. (Intel Inc.)", "ANGLE (Intel Inc., Intel(R) Iris(TM) Plus Graphics 655, OpenGL 4.1)"},
			{"Google Inc. (ATI Technologies Inc.)", "ANGLE (ATI Technologies Inc., AMD Radeon Pro 5500M OpenGL Engine, OpenGL 4.1)"},
		},
		fonts: []string{
			"American Typewriter", "Andale Mono", "Arial", "Avenir", "Avenir Next", "Baskerville",
			"Courier New", "Didot", "Futura", "Geneva", "Georgia", "Gill Sans", "Helvetica",
			"Helvetica Neue", "Lucida Grande", "Menlo", "Monaco", "Optima", "Palatino", "SF Pro",
			"Times", "Trebuchet MS", "Verdana",
		},
		touch: []int{0},
	},
	{
		name:     "linux",
		platform: "Linux x86_64",
		uaFormats: []string{
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		},
		gpus: []GPU{
			{"Google Inc. (Intel)", "ANGLE (Intel, Mesa Intel(R) UHD Graphics 620 (KBL GT2), OpenGL 4.6)"},
			{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 6600 (radeonsi, navi23, LLVM 15.0.7), OpenGL 4.6)"},
			{"Google Inc. (NVIDIA Corporation)", "ANGLE (NVIDIA Corporation, NVIDIA GeForce GTX 1070/PCIe/SSE2, OpenGL 4.5)"},
		},
		fonts: []string{
			"Cantarell", "DejaVu Sans", "DejaVu Sans Mono", "DejaVu Serif", "FreeMono", "FreeSans",
			"Liberation Mono", "Liberation Sans", "Liberation Serif", "Noto Color Emoji", "Noto Sans",
			"Noto Serif", "Ubuntu", "Ubuntu Mono",
		},
		touch: []int{0},
	},
}

var deviceMemories = []int{4, 8, 8, 16, 32}

var hardwareConcurrencies = []int{4, 6, 8, 8, 12, 16}

var screens = []Screen{
	{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1},
	{Width: 1366, Height: 768, ColorDepth: 24, PixelRatio: 1},
	{Width: 1440, Height: 900, ColorDepth: 30, PixelRatio: 2},
	{Width: 1536, Height: 864, ColorDepth: 24, PixelRatio: 1.25},
	{Width: 1280, Height: 720, ColorDepth: 24, PixelRatio: 1},
	{Width: 2560, Height: 1440, ColorDepth: 24, PixelRatio: 1},
	{Width: 1680, Height: 1050, ColorDepth: 30, PixelRatio: 2},
}

// locale pairs navigator.languages with a timezone that plausibly matches it.
type locale struct {
	languages []string
	timezones []string
}

var locales = []locale{
	{[]string{"en-US", "en"}, []string{"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"}},
	{[]string{"en-GB", "en"}, []string{"Europe/London"}},
	{[]string{"de-DE", "de", "en-US", "en"}, []string{"Europe/Berlin"}},
	{[]string{"fr-FR", "fr", "en-US", "en"}, []string{"Europe/Paris"}},
	{[]string{"zh-CN", "zh"}, []string{"Asia/Shanghai"}},
	{[]string{"ja-JP", "ja"}, []string{"Asia/Tokyo"}},
}

// chromePlugins is the fixed list modern Chrome exposes regardless of installed plugins.
var chromePlugins = []Plugin{
	{Name: "PDF Viewer", Filename: "internal-pdf-viewer", Description: "Portable Document Format"},
	{Name: "Chrome PDF Viewer", Filename: "internal-pdf-viewer", Description: "Portable Document Format"},
	{Name: "Chromium PDF Viewer", Filename: "internal-pdf-viewer", Description: "Portable Document Format"},
	{Name: "Microsoft Edge PDF Viewer", Filename: "internal-pdf-viewer", Description: "Portable Document Format"},
	{Name: "WebKit built-in PDF", Filename: "internal-pdf-viewer", Description: "Portable Document Format"},
}

var webrtcPolicies = []string{"default_public_interface_only", "disable_non_proxied_udp"}
