package integration

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/home-guard/internal/config"
)

// trustedMAC is the phone the admin panel reports while somebody is home.
const trustedMAC = "aa:bb:cc:dd:ee:ff"

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// requireShell skips tests that drive the camera through sh.
func requireShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
}

// routerStub serves a router admin panel listing the connected devices.
type routerStub struct {
	*httptest.Server

	home atomic.Bool
}

func newRouterStub(t *testing.T) *routerStub {
	t.Helper()

	r := new(routerStub)
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "1"})
		_, _ = fmt.Fprint(w, "<html><form></form></html>")
	})

	mux.HandleFunc("/form", func(w http.ResponseWriter, req *http.Request) {
		if _, err := req.Cookie("session"); err != nil {
			http.Error(w, "no session", http.StatusForbidden)

			return
		}

		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/devices", func(w http.ResponseWriter, _ *http.Request) {
		mac := "11:22:33:44:55:66"
		if r.home.Load() {
			mac = trustedMAC
		}

		_, _ = fmt.Fprintf(w, `<html><table><tr><td class="tabdata">%s</td></tr></table></html>`, mac)
	})

	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Close)

	return r
}

// telegramStub records every message sent through the Bot API.
type telegramStub struct {
	*httptest.Server

	mu       sync.Mutex
	messages []string
}

func newTelegramStub(t *testing.T) *telegramStub {
	t.Helper()

	s := new(telegramStub)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		text := req.FormValue("text")
		if strings.HasSuffix(req.URL.Path, "/sendPhoto") {
			text = req.FormValue("caption")
		}

		s.mu.Lock()
		s.messages = append(s.messages, text)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(s.Close)

	return s
}

// count returns how many recorded messages start with prefix.
func (s *telegramStub) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int

	for _, m := range s.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}

	return n
}

// writeConfig saves a configuration wired to the stubs and returns its path.
func writeConfig(t *testing.T, router *routerStub, bot *telegramStub, capture []string) (string, *config.Config) {
	t.Helper()

	dir := t.TempDir()

	cfg := &config.Config{
		LogLevel:  "debug",
		StateFile: filepath.Join(dir, config.DefaultStateFilename),
		Presence: config.Presence{
			Interval: 50 * time.Millisecond,
			Strategy: config.StrategyAdminPanel,
			Devices:  []config.Device{{Name: "phone", Address: trustedMAC}},
			AdminPanel: config.AdminPanel{
				LoginURL:   router.URL + "/login",
				FormURL:    router.URL + "/form",
				DevicesURL: router.URL + "/devices",
				Form:       map[string]string{"username": "admin", "password": "admin"},
			},
		},
		Detection: config.Detection{
			IdleInterval:   50 * time.Millisecond,
			AlertInterval:  50 * time.Millisecond,
			CaptureCommand: capture,
			DetectCommand:  []string{"sh", "-c", `cat >/dev/null; printf '{"matched":true}'`},
			Timeout:        5 * time.Second,
		},
		Images: config.Images{Dir: filepath.Join(dir, "images")},
		Notifier: config.Notifier{
			Timeout: 5 * time.Second,
			Telegram: config.Telegram{
				BotToken: "123:token",
				ChatIDs:  []string{"42"},
				APIURL:   bot.URL,
			},
		},
		Supervisor: config.Supervisor{
			Backoff:    50 * time.Millisecond,
			MaxBackoff: 200 * time.Millisecond,
		},
		Status: config.Status{
			ListenAddress: reservePort(t),
			Timeout:       2 * time.Second,
		},
	}

	path := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path, cfg
}
