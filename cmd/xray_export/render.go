package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"xrayexport/models"
)

var severityStyles = map[models.Severity]lipgloss.Style{
	models.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	models.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	models.SeverityWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	models.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

var severityIcons = map[models.Severity]string{
	models.SeverityInfo:    "•",
	models.SeveritySuccess: "✔",
	models.SeverityWarning: "!",
	models.SeverityError:   "✘",
}

func renderMessage(severity models.Severity, message string) string {
	return severityStyles[severity].Render(fmt.Sprintf("%s %s", severityIcons[severity], message))
}

// renderResult はエクスポート結果を重要度に応じた色で表示用に整形します
func renderResult(result models.ExportResult) string {
	var b strings.Builder
	b.WriteString(renderMessage(result.Severity, result.Message))

	if result.Outcome == models.OutcomeSuccess {
		fmt.Fprintf(&b, "\n  テスト %d 件 / %d 行", result.Records, result.Rows)
		if len(result.Files) > 1 {
			for _, f := range result.Files {
				fmt.Fprintf(&b, "\n  %s", f)
			}
		}
	}
	if result.Err != nil && result.State == models.StateFailed {
		fmt.Fprintf(&b, "\n  %v", result.Err)
	}
	return b.String()
}
