package executor

import (
	"strings"
)

// sanitizeCode normalizes model-generated python before it reaches the
// sandbox: drops blank lines, strips the common leading indent, hoists
// imports to the top, and re-indents broken try/except bodies.
func sanitizeCode(code string) string {
	lines := make([]string, 0)
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	minIndent := -1
	for _, line := range lines {
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent > 0 && (minIndent == -1 || indent < minIndent) {
			minIndent = indent
		}
	}

	if minIndent > 0 {
		for i, line := range lines {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if indent >= minIndent {
				lines[i] = line[minIndent:]
			}
		}
	}

	imports := make([]string, 0)
	body := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			imports = append(imports, trimmed)
		} else {
			body = append(body, line)
		}
	}

	out := append(imports, body...)
	return fixTryExceptBlocks(strings.Join(out, "\n"))
}

// fixTryExceptBlocks re-indents statements that follow a try: or except
// header at the same level, which python rejects. Generated code trips on
// this often enough to warrant the repair.
func fixTryExceptBlocks(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		out = append(out, line)

		trimmed := strings.TrimSpace(line)
		if trimmed != "try:" && !strings.HasPrefix(trimmed, "except") {
			continue
		}
		headerIndent := len(line) - len(strings.TrimLeft(line, " \t"))

		for i+1 < len(lines) {
			next := lines[i+1]
			nextTrimmed := strings.TrimSpace(next)
			if nextTrimmed == "" {
				i++
				out = append(out, next)
				continue
			}
			nextIndent := len(next) - len(strings.TrimLeft(next, " \t"))
			if nextIndent > headerIndent {
				break
			}
			if strings.HasPrefix(nextTrimmed, "except") || nextTrimmed == "try:" ||
				strings.HasPrefix(nextTrimmed, "finally") || strings.HasPrefix(nextTrimmed, "else:") {
				break
			}
			i++
			out = append(out, strings.Repeat(" ", headerIndent+4)+nextTrimmed)
		}
	}

	return strings.Join(out, "\n")
}
