package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	inputTimeout    = 10 * time.Second
	geometryTimeout = 10 * time.Second
	scriptTimeout   = 20 * time.Second
)

// ErrElementNotVisible is returned when a selector matches nothing that can be interacted with.
var ErrElementNotVisible = errors.New("element not found or not visible")

// runActionsFunc executes chromedp actions against the session's tab.
type runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

// Session is one live browser tab. It satisfies the humanoid executor and
// the evasion browser capability.
type Session struct {
	id         string
	ctx        context.Context
	release    context.CancelFunc
	logger     *zap.Logger
	runActions runActionsFunc
	closeOnce  sync.Once
}

func newSession(ctx context.Context, release context.CancelFunc, logger *zap.Logger) *Session {
	id := uuid.New().String()
	s := &Session{
		id:      id,
		ctx:     ctx,
		release: release,
		logger:  logger.With(zap.String("session_id", id)),
	}
	s.runActions = s.run
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// run executes actions on the tab, canceled when either the tab or the
// operation context ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// runWithTimeout applies an operation deadline and reports it distinctly.
func (s *Session) runWithTimeout(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.runActions(opCtx, actions...)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		s.logger.Debug("Browser operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("%s timed out after %v: %w", op, timeout, opCtx.Err())
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Sleep pauses for d unless ctx or the tab ends first.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return s.runActions(ctx, chromedp.Sleep(d))
}

// DispatchMouseEvent sends a single mouse event.
func (s *Session) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return s.runWithTimeout(ctx, "dispatching mouse event", inputTimeout, p)
}

// SendKeys types keys into the focused element.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	return s.runWithTimeout(ctx, "sending keys", inputTimeout, chromedp.KeyEvent(keys))
}

const geometryScript = `(function(sel) {
  const node = document.querySelector(sel);
  if (!node) return null;
  const rect = node.getBoundingClientRect();
  const style = window.getComputedStyle(node);
  if (rect.width <= 0 || rect.height <= 0 || style.display === 'none' || style.visibility === 'hidden') return null;
  return {
    vertices: [rect.left, rect.top, rect.right, rect.top, rect.right, rect.bottom, rect.left, rect.bottom],
    width: Math.round(rect.width),
    height: Math.round(rect.height),
    tagName: node.tagName || '',
    type: node.type || ''
  };
})(%s)`

// GetElementGeometry returns the viewport quad of the first element matching selector.
func (s *Session) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("encoding selector: %w", err)
	}
	var res []byte
	if err := s.runWithTimeout(ctx, "reading element geometry", geometryTimeout,
		chromedp.Evaluate(fmt.Sprintf(geometryScript, sel), &res, evalByValue)); err != nil {
		return nil, err
	}
	if len(res) == 0 || string(res) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrElementNotVisible, selector)
	}

	var geo schemas.ElementGeometry
	if err := json.Unmarshal(res, &geo); err != nil {
		return nil, fmt.Errorf("decoding geometry for %q: %w", selector, err)
	}
	if geo.Width <= 0 || geo.Height <= 0 {
		return nil, fmt.Errorf("%w: %s (%dx%d)", ErrElementNotVisible, selector, geo.Width, geo.Height)
	}
	return &geo, nil
}

// ExecuteScript evaluates script in the current document and returns the
// JSON encoding of its result.
func (s *Session) ExecuteScript(ctx context.Context, script string) ([]byte, error) {
	var res []byte
	if err := s.runWithTimeout(ctx, "executing script", scriptTimeout,
		chromedp.Evaluate(script, &res, evalByValue)); err != nil {
		return nil, err
	}
	return res, nil
}

// InjectScript registers script to run before any page script in every new
// document, and also evaluates it in the current one.
func (s *Session) InjectScript(ctx context.Context, script string) error {
	return s.runWithTimeout(ctx, "injecting script", scriptTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Evaluate(script, nil),
	)
}

// SetCookies installs cookies into the browser's cookie store.
func (s *Session) SetCookies(ctx context.Context, cookies []*network.CookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	return s.runWithTimeout(ctx, "setting cookies", inputTimeout, network.SetCookies(cookies))
}

// Navigate loads url and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s.logger.Info("Navigating.", zap.String("url", url))
	return s.runWithTimeout(ctx, "navigating", timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Close shuts the tab and, for launched sessions, the browser process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

func evalByValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
}
