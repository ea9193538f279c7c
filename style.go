package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("204")).
		Background(lipgloss.Color("235")).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	faint = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}).
		Render

	typeStyle = map[string]lipgloss.Style{
		"text":     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"audio":    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"internal": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)
