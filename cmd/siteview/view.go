package main

import (
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"

	"github.com/askneller/WizardBattles/internal/observerproto"
	"github.com/askneller/WizardBattles/internal/sim/mathx"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
)

const (
	statePending  = "pending"
	stateChecking = "checking"
	stateBuilt    = "built"
	stateRejected = "rejected"

	maxLogLines = 3
)

var heightRamp = []rune(" .:-=+*#%@")

type siteMark struct {
	Pos      [3]int
	State    string
	Template string
}

// model is everything the viewer draws. It is only touched from the UI loop.
type model struct {
	terrain  worldgen.Source
	seaLevel int
	topY     int

	centerX, centerZ int
	scale            int

	sites     map[[2]int]siteMark
	lastBuilt *[3]int
	events    []string
	status    string
}

func newModel(terrain worldgen.Source, seaLevel, topY int) *model {
	if topY <= seaLevel {
		topY = seaLevel + 1
	}
	return &model{
		terrain:  terrain,
		seaLevel: seaLevel,
		topY:     topY,
		scale:    4,
		sites:    map[[2]int]siteMark{},
	}
}

func stateOf(kind string) string {
	switch kind {
	case "SITE_ADDED", "SITE_RECLAIMED":
		return statePending
	case "SITE_CHECKING":
		return stateChecking
	case "SITE_BUILT":
		return stateBuilt
	case "SITE_REJECTED":
		return stateRejected
	}
	return ""
}

// apply folds one event into the model and reports whether a tower was
// built.
func (m *model) apply(ev observerproto.SiteEventMsg) bool {
	key := [2]int{ev.Pos[0], ev.Pos[2]}
	st := stateOf(ev.Kind)
	if st != "" {
		// Built sites never regress.
		if cur, ok := m.sites[key]; !ok || cur.State != stateBuilt {
			m.sites[key] = siteMark{Pos: ev.Pos, State: st, Template: ev.Template}
		}
	}
	line := fmt.Sprintf("#%d %s (%d,%d,%d)", ev.Seq, ev.Kind, ev.Pos[0], ev.Pos[1], ev.Pos[2])
	if ev.Detail != "" {
		line += " " + ev.Detail
	}
	m.events = append(m.events, line)
	if len(m.events) > maxLogLines {
		m.events = m.events[len(m.events)-maxLogLines:]
	}
	if st == stateBuilt {
		p := ev.Pos
		m.lastBuilt = &p
		return true
	}
	return false
}

func (m *model) counts() map[string]int {
	out := map[string]int{}
	for _, s := range m.sites {
		out[s.State]++
	}
	return out
}

func (m *model) pan(dRows, dCols int) {
	m.centerX -= dRows * m.scale
	m.centerZ += dCols * m.scale
}

func (m *model) zoom(in bool) {
	if in && m.scale > 1 {
		m.scale /= 2
	} else if !in && m.scale < 64 {
		m.scale *= 2
	}
}

// handleKey applies a key press. It returns false when the viewer should quit.
func (m *model) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		m.pan(-4, 0)
	case tcell.KeyDown:
		m.pan(4, 0)
	case tcell.KeyLeft:
		m.pan(0, -4)
	case tcell.KeyRight:
		m.pan(0, 4)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'k':
			m.pan(-4, 0)
		case 'j':
			m.pan(4, 0)
		case 'h':
			m.pan(0, -4)
		case 'l':
			m.pan(0, 4)
		case '+', '=':
			m.zoom(true)
		case '-':
			m.zoom(false)
		case 'c':
			if m.lastBuilt != nil {
				m.centerX, m.centerZ = m.lastBuilt[0], m.lastBuilt[2]
			}
		case '0':
			m.centerX, m.centerZ = 0, 0
		}
	}
	return true
}

// worldAt maps a screen cell to the world column it shows. North (+x) is up
// and east (+z) is right.
func (m *model) worldAt(col, row, width, mapRows int) (x, z int) {
	return m.centerX - (row-mapRows/2)*m.scale, m.centerZ + (col-width/2)*m.scale
}

func (m *model) cellOf(x, z, width, mapRows int) (col, row int) {
	row = mapRows/2 - mathx.FloorDiv(x-m.centerX, m.scale)
	col = width/2 + mathx.FloorDiv(z-m.centerZ, m.scale)
	return col, row
}

func biomeColor(b gen.Biome) tcell.Color {
	switch b {
	case gen.Ocean:
		return tcell.ColorNavy
	case gen.Desert:
		return tcell.ColorOlive
	case gen.Forest:
		return tcell.ColorDarkGreen
	case gen.Mountains:
		return tcell.ColorGray
	case gen.Snow:
		return tcell.ColorSilver
	default:
		return tcell.ColorGreen
	}
}

func markStyle(state string) (rune, tcell.Style) {
	base := tcell.StyleDefault.Bold(true)
	switch state {
	case stateBuilt:
		return 'T', base.Foreground(tcell.ColorFuchsia)
	case stateChecking:
		return '!', base.Foreground(tcell.ColorAqua)
	case stateRejected:
		return 'x', base.Foreground(tcell.ColorRed)
	default:
		return '?', base.Foreground(tcell.ColorYellow)
	}
}

var statePriority = map[string]int{stateBuilt: 4, stateChecking: 3, statePending: 2, stateRejected: 1}

func (m *model) draw(s tcell.Screen) {
	s.Clear()
	width, height := s.Size()
	mapRows := height - 1 - maxLogLines
	if mapRows < 1 || width < 1 {
		s.Show()
		return
	}

	for row := 0; row < mapRows; row++ {
		for col := 0; col < width; col++ {
			x, z := m.worldAt(col, row, width, mapRows)
			h := int(m.terrain.HeightAt(x, z))
			ch := '~'
			if h >= m.seaLevel {
				i := (h - m.seaLevel) * (len(heightRamp) - 1) / (m.topY - m.seaLevel)
				if i >= len(heightRamp) {
					i = len(heightRamp) - 1
				}
				ch = heightRamp[i]
			}
			style := tcell.StyleDefault.Background(biomeColor(m.terrain.BiomeAt(x, z))).Foreground(tcell.ColorWhite)
			s.SetContent(col, row, ch, nil, style)
		}
	}

	// Several sites can share a cell when zoomed out; show the most advanced.
	best := map[[2]int]siteMark{}
	keys := make([][2]int, 0, len(m.sites))
	for k := range m.sites {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		site := m.sites[k]
		col, row := m.cellOf(site.Pos[0], site.Pos[2], width, mapRows)
		if col < 0 || col >= width || row < 0 || row >= mapRows {
			continue
		}
		cell := [2]int{col, row}
		if cur, ok := best[cell]; !ok || statePriority[site.State] > statePriority[cur.State] {
			best[cell] = site
		}
	}
	for cell, site := range best {
		r, style := markStyle(site.State)
		s.SetContent(cell[0], cell[1], r, nil, style)
	}

	for i, line := range m.events {
		drawText(s, 0, mapRows+i, width, line, tcell.StyleDefault)
	}
	c := m.counts()
	status := fmt.Sprintf(" centre=(%d,%d) 1:%d  pending=%d checking=%d built=%d rejected=%d  %s",
		m.centerX, m.centerZ, m.scale, c[statePending], c[stateChecking], c[stateBuilt], c[stateRejected], m.status)
	drawText(s, 0, height-1, width, status, tcell.StyleDefault.Reverse(true))
	s.Show()
}

func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= width {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
