package status

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/home-guard/internal/domain/sensor"
)

var (
	colorGreen  = lipgloss.Color("2")
	colorRed    = lipgloss.Color("1")
	colorYellow = lipgloss.Color("3")
	colorDim    = lipgloss.Color("8")

	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorDim).Width(20)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// Archive describes the local frame archive.
type Archive struct {
	// Frames is the number of archived frames.
	Frames int
	// Latest is the newest frame, empty when there is none.
	Latest string
}

// Render formats the snapshot as a bordered panel. now is used to print
// relative times. archive is optional.
func Render(s *sensor.Snapshot, source string, now time.Time, archive *Archive) string {
	rows := []string{
		row("presence", stateStyle(s.Presence).Render(s.Presence.String())),
		row("camera", stateStyle(s.Detection).Render(s.Detection.String())),
		row("updated", ago(s.UpdatedAt, now)),
		row("alerts", fmt.Sprintf("%d (last %s)", s.Alerts, ago(s.LastAlertAt, now))),
	}

	if s.LastImagePath != "" {
		rows = append(rows, row("last image", s.LastImagePath))
	}

	if archive != nil {
		rows = append(rows, row("archived frames", fmt.Sprint(archive.Frames)))

		if archive.Latest != "" {
			rows = append(rows, row("latest frame", archive.Latest))
		}
	}

	kinds := make([]sensor.Kind, 0, len(s.Restarts))
	for kind := range s.Restarts {
		kinds = append(kinds, kind)
	}

	slices.Sort(kinds)

	for _, kind := range kinds {
		rows = append(rows, row(kind.String()+" restarts", fmt.Sprint(s.Restarts[kind])))
	}

	title := titleStyle.Render("home-guard")
	if s.Intrusion() {
		title += " " + lipgloss.NewStyle().Bold(true).Foreground(colorRed).Render("INTRUSION")
	}

	body := lipgloss.JoinVertical(lipgloss.Left, append([]string{title, ""}, rows...)...)
	footer := lipgloss.NewStyle().Foreground(colorDim).Render("source: " + source)

	return lipgloss.JoinVertical(lipgloss.Left, panelStyle.Render(body), footer)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// stateStyle colors a state by what it means for the home.
func stateStyle(state sensor.State) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)

	switch state {
	case sensor.PresencePresent, sensor.DetectionNotDetected:
		return style.Foreground(colorGreen)
	case sensor.PresenceAbsent, sensor.DetectionSuppressed:
		return style.Foreground(colorYellow)
	case sensor.DetectionDetected:
		return style.Foreground(colorRed)
	default:
		return style.Foreground(colorDim)
	}
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := now.Sub(t).Truncate(time.Second)
	if d < 0 {
		d = 0
	}

	return strings.Join([]string{d.String(), "ago"}, " ")
}
