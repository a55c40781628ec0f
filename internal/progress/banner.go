package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one "key=value" line of the banner.
type Field struct {
	Key   string
	Value any
}

// Banner renders a title and fields between "=" rules. Colors are only
// emitted when w is a color-capable terminal.
func Banner(w io.Writer, title string, fields []Field) string {
	r := lipgloss.NewRenderer(w)
	titleStyle := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
	keyStyle := r.NewStyle().Foreground(lipgloss.Color("#1D9DA0"))

	rule := strings.Repeat("=", 72)
	var sb strings.Builder
	sb.WriteString(rule + "\n")
	sb.WriteString(titleStyle.Render("## "+title+" ##") + "\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "# %s=%s\n", keyStyle.Render(f.Key), formatValue(f.Value))
	}
	sb.WriteString(rule + "\n")
	return sb.String()
}

// Separator is the dashed line printed after each temperature.
func Separator() string { return strings.Repeat("-", 62) }

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprint(x)
	}
}
