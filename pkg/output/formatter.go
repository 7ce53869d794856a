package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lcalzada-xor/declass/pkg/lower"
	"github.com/lcalzada-xor/declass/pkg/models"
)

const (
	cPurple      = "\x1b[38;5;129m"
	cLightPurple = "\x1b[38;5;141m"
	cDarkPurple  = "\x1b[38;5;93m"
	cRed         = "\x1b[38;5;196m"
	cOrange      = "\x1b[38;5;214m"
	cReset       = "\x1b[0m"
)

// Format renders the report line of one result.
func Format(res *models.Result, format string, color bool) string {
	switch format {
	case "json":
		out, err := json.Marshal(res)
		if err != nil {
			return fmt.Sprintf("{\"error\":\"failed to marshal result: %v\"}", err)
		}
		return string(out)

	case "human":
		return human(res, palette(color))

	default:
		return text(res)
	}
}

// text is one line per input, grep friendly.
func text(res *models.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\t%s", res.Input.Location, res.Status)
	if res.Error != "" {
		fmt.Fprintf(&sb, "\t%s", firstLine(res.Error))
		return sb.String()
	}
	var names []string
	for _, c := range res.Classes {
		name := c.Name
		if c.Retained {
			name += "*"
		}
		names = append(names, name)
	}
	fmt.Fprintf(&sb, "\t%s", strings.Join(names, ","))
	if res.Verify != nil {
		if res.Verify.Equivalent {
			sb.WriteString("\tverified")
		} else {
			sb.WriteString("\tmismatch")
		}
	}
	return sb.String()
}

type colors struct {
	title, label, value, bad, warn, reset string
}

func palette(on bool) colors {
	if !on {
		return colors{}
	}
	return colors{cPurple, cDarkPurple, cLightPurple, cRed, cOrange, cReset}
}

func human(res *models.Result, c colors) string {
	var sb strings.Builder

	switch res.Status {
	case models.StatusFailed:
		fmt.Fprintf(&sb, "\n%s[!] %s%s\n", c.bad, res.Input.Location, c.reset)
		for _, line := range strings.Split(res.Error, "\n") {
			fmt.Fprintf(&sb, "    %s\n", line)
		}
		return sb.String()
	case models.StatusUnchanged:
		fmt.Fprintf(&sb, "\n%s[=] %s%s\n", c.title, res.Input.Location, c.reset)
	default:
		fmt.Fprintf(&sb, "\n%s[+] %s%s\n", c.title, res.Input.Location, c.reset)
	}

	if res.Output != "" {
		fmt.Fprintf(&sb, "    %sOutput:%s     %s%s%s\n", c.label, c.reset, c.value, res.Output, c.reset)
	}
	if res.Scripts > 0 {
		fmt.Fprintf(&sb, "    %sScripts:%s    %s%d%s\n", c.label, c.reset, c.value, res.Scripts, c.reset)
	}
	if res.Cached {
		fmt.Fprintf(&sb, "    %sCached:%s     %strue%s\n", c.label, c.reset, c.value, c.reset)
	}
	for _, cl := range res.Classes {
		state := "lowered"
		if cl.Retained {
			state = "lowered, class kept"
		}
		fmt.Fprintf(&sb, "    %sClass:%s      %s%s%s (%s)\n", c.label, c.reset, c.value, cl.Name, c.reset, state)
		fmt.Fprintf(&sb, "                %s", cl.Constructor)
		if cl.Init != "" {
			fmt.Fprintf(&sb, ", %s", cl.Init)
		}
		for _, m := range cl.Methods {
			fmt.Fprintf(&sb, ", %s", m)
		}
		sb.WriteString("\n")
	}
	for _, d := range res.Diagnostics {
		col := c.value
		if d.Severity == lower.SeverityWarning {
			col = c.warn
		}
		fmt.Fprintf(&sb, "    %s%s%s\n", col, d, c.reset)
	}
	if v := res.Verify; v != nil {
		switch {
		case v.Error != "":
			fmt.Fprintf(&sb, "    %sVerify:%s     %s%s%s\n", c.label, c.reset, c.bad, v.Error, c.reset)
		case v.Equivalent:
			fmt.Fprintf(&sb, "    %sVerify:%s     %sequivalent%s\n", c.label, c.reset, c.value, c.reset)
		default:
			fmt.Fprintf(&sb, "    %sVerify:%s     %s%s%s\n", c.label, c.reset, c.bad, strings.Join(v.Mismatches, "; "), c.reset)
		}
	}
	return sb.String()
}

// Summary renders the totals of a run.
func Summary(stats models.Stats, format string) string {
	switch format {
	case "json":
		out, err := json.Marshal(stats)
		if err != nil {
			return fmt.Sprintf("{\"error\":\"failed to marshal stats: %v\"}", err)
		}
		return string(out)
	default:
		line := fmt.Sprintf("%d inputs, %d lowered, %d failed, %d classes (%d kept), %d from cache",
			stats.Inputs, stats.Lowered, stats.Failed, stats.Classes, stats.Retained, stats.Cached)
		if stats.Mismatched > 0 {
			line += fmt.Sprintf(", %d not equivalent", stats.Mismatched)
		}
		return line
	}
}

// Classes renders the result of inspecting a unit.
func Classes(name string, classes []lower.ClassInfo, format string) string {
	if format == "json" {
		out, err := json.Marshal(map[string]interface{}{"input": name, "classes": classes})
		if err != nil {
			return fmt.Sprintf("{\"error\":\"failed to marshal classes: %v\"}", err)
		}
		return string(out)
	}

	var sb strings.Builder
	for _, cl := range classes {
		name := cl.Name
		if name == "" {
			name = "(anonymous)"
		}
		state := "eligible"
		if !cl.Eligible {
			state = "skipped: " + cl.Reason
		}
		fmt.Fprintf(&sb, "%s:%d:%d\t%s\t%s", cl.Position.Filename, cl.Position.Line, cl.Position.Column, name, state)
		if len(cl.Methods) > 0 {
			fmt.Fprintf(&sb, "\tmethods=%s", strings.Join(cl.Methods, ","))
		}
		if len(cl.Fields) > 0 {
			fmt.Fprintf(&sb, "\tfields=%s", strings.Join(cl.Fields, ","))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
