package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

// macLength is the length of a colon separated MAC address.
const macLength = 17

// errBadStatus is returned when the router answers with a non-2xx status.
var errBadStatus = errors.New("unexpected http status")

// AdminPanelConfig holds the router pages used by the probe.
type AdminPanelConfig struct {
	LoginURL   string
	FormURL    string
	DevicesURL string
	Form       map[string]string
}

// AdminPanel logs into the router admin panel and reads the list of connected
// clients from its device info page.
type AdminPanel struct {
	devices   *Devices
	cfg       AdminPanelConfig
	transport http.RoundTripper
}

// NewAdminPanel creates the probe. A nil transport uses http.DefaultTransport.
func NewAdminPanel(devices *Devices, cfg AdminPanelConfig, transport http.RoundTripper) *AdminPanel {
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &AdminPanel{
		devices:   devices,
		cfg:       cfg,
		transport: transport,
	}
}

// CheckPresence opens a fresh session, logs in and scrapes the device list.
func (a *AdminPanel) CheckPresence(ctx context.Context) (sensor.PresenceResult, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return sensor.PresenceResult{}, fmt.Errorf("create cookie jar: %w", err)
	}

	client := &http.Client{Jar: jar, Transport: a.transport}
	defer client.CloseIdleConnections()

	if _, err = a.fetch(ctx, client, http.MethodGet, a.cfg.LoginURL, nil); err != nil {
		return sensor.PresenceResult{}, fmt.Errorf("open login page: %w", err)
	}

	form := make(url.Values, len(a.cfg.Form))
	for k, v := range a.cfg.Form {
		form.Set(k, v)
	}

	if _, err = a.fetch(ctx, client, http.MethodPost, a.cfg.FormURL, form); err != nil {
		return sensor.PresenceResult{}, fmt.Errorf("log in: %w", err)
	}

	page, err := a.fetch(ctx, client, http.MethodGet, a.cfg.DevicesURL, nil)
	if err != nil {
		return sensor.PresenceResult{}, fmt.Errorf("open device list: %w", err)
	}

	seen, err := scrapeAddresses(page)
	if err != nil {
		return sensor.PresenceResult{}, fmt.Errorf("parse device list: %w", err)
	}

	logger.DebugKV(ctx, "Connected devices", "addresses", seen)

	return result(a.devices.Match(seen)), nil
}

func (a *AdminPanel) fetch(ctx context.Context, client *http.Client, method, target string, form url.Values) (string, error) {
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return "", err
	}

	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", a.cfg.LoginURL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(contents), nil
}

// scrapeAddresses returns the MAC addresses found in <td class="tabdata"> cells.
func scrapeAddresses(page string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	var addresses []string

	for n := range root.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.Td || !hasClass(n, "tabdata") {
			continue
		}

		text := strings.TrimSpace(textContent(n))
		if len(text) == macLength && macPattern.MatchString(text) {
			addresses = append(addresses, strings.ToUpper(text))
		}
	}

	return addresses, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(" "+attr.Val+" ", " "+class+" ") {
			return true
		}
	}

	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder

	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}

	return b.String()
}
