package schemas

// -- Browser Control Schemas --

// ElementGeometry defines the bounding box, vertices, and metadata of a DOM element.
type ElementGeometry struct {
	Vertices []float64 `json:"vertices"`
	Width    int64     `json:"width"`
	Height   int64     `json:"height"`
	// TagName (e.g., "INPUT", "BUTTON") of the resolved node.
	TagName string `json:"tagName"`
	Type    string `json:"type,omitempty"`
}

// Origin returns the top-left vertex of the geometry.
func (g *ElementGeometry) Origin() (x, y float64) {
	if g == nil || len(g.Vertices) < 2 {
		return 0, 0
	}
	return g.Vertices[0], g.Vertices[1]
}

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// MouseEventData encapsulates all data for a mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
	DeltaX     float64        `json:"deltaX"`
	DeltaY     float64        `json:"deltaY"`
}

// WindowSize is a browser window resolution preset.
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchOptions carries everything a browser-control implementation needs
// to start a disguised session.
type LaunchOptions struct {
	UserAgent    string            `json:"userAgent"`
	Platform     string            `json:"platform,omitempty"`
	Window       WindowSize        `json:"window"`
	ProxyAddress string            `json:"proxyAddress,omitempty"`
	Languages    []string          `json:"languages,omitempty"`
	Timezone     string            `json:"timezone,omitempty"`
	Headless     bool              `json:"headless"`
	ExtraFlags   map[string]string `json:"extraFlags,omitempty"`
}

// ActionKind names the primary interaction the automation driver is about to perform.
type ActionKind string

const (
	ActionMove   ActionKind = "move"
	ActionClick  ActionKind = "click"
	ActionType   ActionKind = "type"
	ActionScroll ActionKind = "scroll"
)
