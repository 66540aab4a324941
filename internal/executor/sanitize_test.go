package executor

import (
	"strings"
	"testing"
)

func TestSanitizeCodeStripsCommonIndent(t *testing.T) {
	code := "    import statsapi\n    data = statsapi.schedule(sportId=1)\n    print(data)"
	got := sanitizeCode(code)
	for _, line := range strings.Split(got, "\n") {
		if strings.HasPrefix(line, "    ") {
			t.Fatalf("indent not stripped: %q", line)
		}
	}
}

func TestSanitizeCodeHoistsImports(t *testing.T) {
	code := "data = statsapi.schedule(sportId=1)\nimport statsapi\nimport json\nprint(json.dumps(data))"
	got := strings.Split(sanitizeCode(code), "\n")
	if got[0] != "import statsapi" || got[1] != "import json" {
		t.Fatalf("imports not hoisted: %v", got[:2])
	}
}

func TestSanitizeCodeDropsBlankLines(t *testing.T) {
	code := "import json\n\n\nprint(json.dumps({}))\n"
	got := sanitizeCode(code)
	if strings.Contains(got, "\n\n") {
		t.Fatalf("blank lines survived: %q", got)
	}
}

func TestSanitizeCodeEmpty(t *testing.T) {
	if got := sanitizeCode("\n  \n"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestFixTryExceptBlocks(t *testing.T) {
	code := "try:\nresult = statsapi.schedule(sportId=1)\nexcept Exception as e:\nresult = None"
	got := strings.Split(fixTryExceptBlocks(code), "\n")
	want := []string{
		"try:",
		"    result = statsapi.schedule(sportId=1)",
		"except Exception as e:",
		"    result = None",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFixTryExceptBlocksLeavesCorrectCode(t *testing.T) {
	code := "try:\n    x = 1\nexcept Exception:\n    x = 2"
	if got := fixTryExceptBlocks(code); got != code {
		t.Fatalf("correctly indented code changed:\n%q\n%q", code, got)
	}
}
