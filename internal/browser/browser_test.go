package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mimic/api/schemas"
	"github.com/xkilldash9x/mimic/internal/config"
)

func TestLaunchFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{}, schemas.LaunchOptions{})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		assert.NotContains(t, flags, "proxy-server")
		assert.NotContains(t, flags, "window-size")
	})

	t.Run("session identity", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{Headless: true}, schemas.LaunchOptions{
			UserAgent:    "Mozilla/5.0 test",
			Window:       schemas.WindowSize{Width: 1366, Height: 768},
			ProxyAddress: "socks5://10.0.0.1:1080",
			Languages:    []string{"de-DE", "de"},
		})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, "1366,768", flags["window-size"])
		assert.Equal(t, "Mozilla/5.0 test", flags["user-agent"])
		assert.Equal(t, "socks5://10.0.0.1:1080", flags["proxy-server"])
		assert.Equal(t, "de-DE", flags["lang"])
	})

	t.Run("config args and extra flags", func(t *testing.T) {
		cfg := config.BrowserConfig{Args: []string{"--no-sandbox", "--disable-gpu=false", "--remote-debugging-port=9222", "--"}}
		flags := LaunchFlags(cfg, schemas.LaunchOptions{
			ExtraFlags: map[string]string{"--mute-audio": "", "remote-debugging-port": "9333"},
		})
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, false, flags["disable-gpu"])
		assert.Equal(t, true, flags["mute-audio"])
		assert.Equal(t, "9333", flags["remote-debugging-port"], "extra flags override config args")
		assert.NotContains(t, flags, "")
	})
}

func TestAllocatorOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)
	opts := schemas.LaunchOptions{UserAgent: "ua"}
	flags := LaunchFlags(config.BrowserConfig{}, opts)

	assert.Len(t, AllocatorOptions(config.BrowserConfig{}, opts), base+len(flags))
	assert.Len(t, AllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"}, opts), base+len(flags)+1)
}

func TestEmulationTasks(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tasks := EmulationTasks(schemas.LaunchOptions{
		UserAgent: "Mozilla/5.0 test",
		Platform:  "MacIntel",
		Languages: []string{"fr-FR", "fr"},
		Timezone:  "Europe/Paris",
	}, logger)
	require.Len(t, tasks, 5)

	ua, ok := tasks[0].(*emulation.SetUserAgentOverrideParams)
	require.True(t, ok)
	assert.Equal(t, "MacIntel", ua.Platform)
	assert.Equal(t, "fr-FR,fr;q=0.9", ua.AcceptLanguage)

	tz, ok := tasks[1].(*emulation.SetTimezoneOverrideParams)
	require.True(t, ok)
	assert.Equal(t, "Europe/Paris", tz.TimezoneID)

	headers, ok := tasks[4].(*network.SetExtraHTTPHeadersParams)
	require.True(t, ok)
	assert.Equal(t, "fr-FR,fr;q=0.9", headers.Headers["Accept-Language"])

	assert.Len(t, EmulationTasks(schemas.LaunchOptions{}, logger), 2, "only the header tasks without an identity")
}

// recordingSession returns a session whose actions are captured instead of sent to a browser.
func recordingSession(t *testing.T, result error) (*Session, *[]chromedp.Action) {
	t.Helper()
	var captured []chromedp.Action
	s := newSession(context.Background(), nil, zaptest.NewLogger(t))
	s.runActions = func(ctx context.Context, actions ...chromedp.Action) error {
		captured = append(captured, actions...)
		return result
	}
	return s, &captured
}

func TestSession_DispatchMouseEvent(t *testing.T) {
	s, captured := recordingSession(t, nil)

	require.NoError(t, s.DispatchMouseEvent(context.Background(), schemas.MouseEventData{
		Type: schemas.MousePress, X: 10.5, Y: 20.5, Button: schemas.ButtonLeft, Buttons: 1, ClickCount: 1,
	}))
	require.NoError(t, s.DispatchMouseEvent(context.Background(), schemas.MouseEventData{
		Type: schemas.MouseWheel, X: 1, Y: 2, DeltaY: 35,
	}))
	require.Len(t, *captured, 2)

	press, ok := (*captured)[0].(*input.DispatchMouseEventParams)
	require.True(t, ok)
	assert.Equal(t, input.MousePressed, press.Type)
	assert.Equal(t, 10.5, press.X)
	assert.Equal(t, input.Left, press.Button)
	assert.Equal(t, int64(1), press.ClickCount)
	assert.Zero(t, press.DeltaY)

	wheel := (*captured)[1].(*input.DispatchMouseEventParams)
	assert.Equal(t, input.MouseWheel, wheel.Type)
	assert.Equal(t, 35.0, wheel.DeltaY)
}

func TestSession_Errors(t *testing.T) {
	t.Run("wrapped failure", func(t *testing.T) {
		boom := errors.New("target closed")
		s, _ := recordingSession(t, boom)
		err := s.SendKeys(context.Background(), "abc")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "sending keys")
	})

	t.Run("timeout", func(t *testing.T) {
		s := newSession(context.Background(), nil, zaptest.NewLogger(t))
		s.runActions = func(ctx context.Context, actions ...chromedp.Action) error {
			<-ctx.Done()
			return ctx.Err()
		}
		err := s.runWithTimeout(context.Background(), "slow op", 10*time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "timed out")
	})
}

func TestSession_SetCookiesSkipsEmptyJar(t *testing.T) {
	s, captured := recordingSession(t, nil)
	require.NoError(t, s.SetCookies(context.Background(), nil))
	assert.Empty(t, *captured)

	require.NoError(t, s.SetCookies(context.Background(), []*network.CookieParam{{Name: "a", Value: "1", Domain: "example.com"}}))
	require.Len(t, *captured, 1)
	assert.IsType(t, &network.SetCookiesParams{}, (*captured)[0])
}

func TestSession_InjectScript(t *testing.T) {
	s, captured := recordingSession(t, nil)
	require.NoError(t, s.InjectScript(context.Background(), "window.x = 1;"))
	require.Len(t, *captured, 2, "registers for new documents and evaluates in the current one")
	assert.IsType(t, chromedp.ActionFunc(nil), (*captured)[0])
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	calls := 0
	s := newSession(context.Background(), func() { calls++ }, zaptest.NewLogger(t))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, calls)
}

func TestCombineContext(t *testing.T) {
	type key struct{}
	parent := context.WithValue(context.Background(), key{}, "tab")
	op, cancelOp := context.WithCancel(context.Background())

	combined, cancel := CombineContext(parent, op)
	defer cancel()
	assert.Equal(t, "tab", combined.Value(key{}))

	cancelOp()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with the operation context")
	}
}
