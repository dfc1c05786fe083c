package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"capeline/internal/domain"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
	cGold    = lipgloss.Color("220") // gold
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Gold  = lipgloss.NewStyle().Bold(true).Foreground(cGold)
	Muted = lipgloss.NewStyle().Foreground(cMuted)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func Heading(title string) string {
	return Title.Render(title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// Money renders an amount with thousands separators.
func Money(n int) string {
	return Gold.Render("$" + humanize.Comma(int64(n)))
}

// Signed renders a delta with its sign, green when positive and red when negative.
func Signed(n int) string {
	switch {
	case n > 0:
		return Good.Render(fmt.Sprintf("+%d", n))
	case n < 0:
		return Bad.Render(fmt.Sprintf("%d", n))
	}
	return Muted.Render("0")
}

func Level(l domain.SuccessLevel) string {
	switch l {
	case domain.CompleteSuccess, domain.Success:
		return Good.Render(string(l))
	case domain.PartialSuccess, domain.PartialFailure:
		return Warn.Render(string(l))
	case "":
		return Muted.Render("-")
	}
	return Bad.Render(string(l))
}

func Phase(p string) string {
	switch p {
	case "PROCESSING":
		return Warn.Render(p)
	case "REPORT_READY":
		return Good.Render(p)
	case "ERROR":
		return Bad.Render(p)
	}
	return Muted.Render(p)
}

// PlayerCard is the status panel for a save.
func PlayerCard(s domain.SaveFile) string {
	p := s.Player
	st := p.Stats
	lines := []string{
		H2.Render(fmt.Sprintf("%s / %s", p.CivilianName, p.SuperName)),
		LabelValue("Day", s.GameState.Day),
		LabelValue("Identity", p.Identity),
		LabelValue("Money", Money(p.Resources.Money)),
		LabelValue("Fame", p.Resources.Fame),
		LabelValue("Opinion", p.Resources.PublicOpinion),
		LabelValue("Mask", p.Resources.Mask),
		LabelValue("Stats", fmt.Sprintf("STR %.1f  AGI %.1f  INT %.1f  CHA %.1f", st.Strength, st.Agility, st.Intellect, st.Charisma)),
		LabelValue("Skill points", p.SkillPoints),
		LabelValue("Downtime", p.DowntimeTokens),
		LabelValue("Effort", fmt.Sprintf("%d/%d", s.GameState.EffortUsed, s.GameState.DailyConfig.EffortLimit)),
	}
	if s.GameState.PendingNews != nil {
		lines = append(lines, Warn.Render("News waiting for review: "+s.GameState.PendingNews.Headline))
	}
	return Panel.Render(strings.Join(lines, "\n"))
}
