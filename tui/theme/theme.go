// Package theme holds the lipgloss palette and styles shared by the CLI help
// and the watch viewer.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/projectify/live/config"
)

const defaultThemeName = "kanagawa"

// Colors is the palette of a theme. lipgloss.TerminalColor allows a mix of
// adaptive and static colors.
type Colors struct {
	Green     lipgloss.TerminalColor
	Yellow    lipgloss.TerminalColor
	Red       lipgloss.TerminalColor
	Orange    lipgloss.TerminalColor
	Cyan      lipgloss.TerminalColor
	Blue      lipgloss.TerminalColor
	Violet    lipgloss.TerminalColor
	MutedText lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
}

// Config is the `tui` section of live.yml.
type Config struct {
	Theme string `yaml:"theme" json:"theme,omitempty" jsonschema:"description=Color palette: kanagawa, gruvbox or terminal"`
}

// Theme holds the pre-configured styles.
type Theme struct {
	Name   string
	Colors Colors

	Header  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Italic lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style

	Box lipgloss.Style
}

var palettes = map[string]func() Colors{
	"kanagawa": kanagawa,
	"gruvbox":  gruvbox,
	"terminal": terminal,
}

// DefaultTheme is resolved once from LIVE_THEME or the `tui.theme` setting.
var DefaultTheme = New(themeName())

// New builds the named theme, falling back to the default palette for
// unknown names.
func New(name string) *Theme {
	name = normalize(name)
	build, ok := palettes[name]
	if !ok {
		name = defaultThemeName
		build = palettes[name]
	}
	c := build()
	return &Theme{
		Name:    name,
		Colors:  c,
		Header:  lipgloss.NewStyle().Bold(true).Foreground(c.Orange),
		Success: lipgloss.NewStyle().Bold(true).Foreground(c.Green),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(c.Red),
		Warning: lipgloss.NewStyle().Bold(true).Foreground(c.Yellow),
		Info:    lipgloss.NewStyle().Foreground(c.Cyan),
		Bold:    lipgloss.NewStyle().Bold(true),
		Italic:  lipgloss.NewStyle().Italic(true),
		Muted:   lipgloss.NewStyle().Foreground(c.MutedText),
		Accent:  lipgloss.NewStyle().Foreground(c.Violet),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c.Border).
			Padding(0, 1),
	}
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	if i := strings.IndexByte(name, '-'); i > 0 {
		// kanagawa-dragon, gruvbox-light, ...
		name = name[:i]
	}
	return name
}

func themeName() string {
	if name := os.Getenv("LIVE_THEME"); name != "" {
		return name
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		return defaultThemeName
	}
	var tuiCfg Config
	if err := cfg.UnmarshalExtension("tui", &tuiCfg); err == nil && tuiCfg.Theme != "" {
		return tuiCfg.Theme
	}
	return defaultThemeName
}

func kanagawa() Colors {
	return Colors{
		Green:     lipgloss.AdaptiveColor{Light: "#4E7C5A", Dark: "#98BB6C"},
		Yellow:    lipgloss.AdaptiveColor{Light: "#A68A64", Dark: "#FF9E3B"},
		Red:       lipgloss.AdaptiveColor{Light: "#C34043", Dark: "#FF5D62"},
		Orange:    lipgloss.AdaptiveColor{Light: "#CC6B4E", Dark: "#FFA066"},
		Cyan:      lipgloss.AdaptiveColor{Light: "#5B8BBE", Dark: "#7E9CD8"},
		Blue:      lipgloss.AdaptiveColor{Light: "#4F7CAC", Dark: "#7FB4CA"},
		Violet:    lipgloss.AdaptiveColor{Light: "#674D7A", Dark: "#957FB8"},
		MutedText: lipgloss.AdaptiveColor{Light: "#6C7086", Dark: "#727169"},
		Border:    lipgloss.AdaptiveColor{Light: "#B5BDC5", Dark: "#363646"},
	}
}

func gruvbox() Colors {
	return Colors{
		Green:     lipgloss.AdaptiveColor{Light: "#98971A", Dark: "#B8BB26"},
		Yellow:    lipgloss.AdaptiveColor{Light: "#D79921", Dark: "#FABD2F"},
		Red:       lipgloss.AdaptiveColor{Light: "#CC241D", Dark: "#FB4934"},
		Orange:    lipgloss.AdaptiveColor{Light: "#D65D0E", Dark: "#FE8019"},
		Cyan:      lipgloss.AdaptiveColor{Light: "#458588", Dark: "#83A598"},
		Blue:      lipgloss.AdaptiveColor{Light: "#076678", Dark: "#458588"},
		Violet:    lipgloss.AdaptiveColor{Light: "#8F3F71", Dark: "#B16286"},
		MutedText: lipgloss.AdaptiveColor{Light: "#928374", Dark: "#BDAE93"},
		Border:    lipgloss.AdaptiveColor{Light: "#D5C4A1", Dark: "#504945"},
	}
}

func terminal() Colors {
	return Colors{
		Green:     lipgloss.Color("2"),
		Yellow:    lipgloss.Color("3"),
		Red:       lipgloss.Color("1"),
		Orange:    lipgloss.Color("208"),
		Cyan:      lipgloss.Color("6"),
		Blue:      lipgloss.Color("4"),
		Violet:    lipgloss.Color("5"),
		MutedText: lipgloss.Color("8"),
		Border:    lipgloss.Color("8"),
	}
}
