package style

import "github.com/charmbracelet/lipgloss"

// HelpTemplate returns a cobra usage template with styled headings, or "" when
// colour is disabled so cobra keeps its default.
func HelpTemplate() string {
	if !Enabled {
		return ""
	}

	heading := lipgloss.NewStyle().Bold(true).Foreground(Cyan).Render
	dim := DimText.Render

	return heading("Usage") + `:
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}
` + `{{if gt (len .Aliases) 0}}
` + heading("Aliases") + `
  {{.NameAndAliases}}
{{end}}` + `{{if .HasExample}}
` + heading("Examples") + `
{{.Example}}
{{end}}` + `{{if .HasAvailableSubCommands}}
` + heading("Available Commands") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }}  {{.Short}}{{end}}{{end}}
{{end}}` + `{{if .HasAvailableLocalFlags}}
` + heading("Flags") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}` + `{{if .HasAvailableInheritedFlags}}
` + heading("Global Flags") + `
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}` + `{{if .HasAvailableSubCommands}}
` + dim(`Use "{{.CommandPath}} [command] --help" for more information about a command.`) + `
{{end}}`
}
