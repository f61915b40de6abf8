package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.bak"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.bak" {
			t.Errorf("expected *.bak, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.bak", "drafts/wip", "/drafts", "tmp/"})
		if m.patterns[0].matchPath {
			t.Error("*.bak should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("drafts/wip should be a path pattern")
		}
		if !m.patterns[2].matchPath || m.patterns[2].pattern != "drafts" {
			t.Errorf("/drafts parsed as %+v, want root-anchored path pattern", m.patterns[2])
		}
		if m.patterns[3].matchPath || m.patterns[3].pattern != "tmp" {
			t.Errorf("tmp/ parsed as %+v, want basename pattern", m.patterns[3])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "basename glob matches file in root",
			patterns:     []string{"*.bak"},
			relativePath: "guide.bak",
			want:         true,
		},
		{
			name:         "basename glob matches file in subdirectory",
			patterns:     []string{"*.bak"},
			relativePath: filepath.Join("docs", "guide.bak"),
			want:         true,
		},
		{
			name:         "basename glob does not match different extension",
			patterns:     []string{"*.bak"},
			relativePath: "guide.rst",
			want:         false,
		},
		{
			name:         "exact basename match",
			patterns:     []string{".gitpubignore"},
			relativePath: ".gitpubignore",
			want:         true,
		},
		{
			name:         "exact basename matches in subdirectory",
			patterns:     []string{".DS_Store"},
			relativePath: filepath.Join("docs", ".DS_Store"),
			want:         true,
		},
		{
			name:         "path pattern matches exact relative path",
			patterns:     []string{"drafts/wip"},
			relativePath: filepath.Join("drafts", "wip"),
			want:         true,
		},
		{
			name:         "path pattern does not match wrong path",
			patterns:     []string{"drafts/wip"},
			relativePath: filepath.Join("docs", "wip"),
			want:         false,
		},
		{
			name:         "path pattern with glob",
			patterns:     []string{"drafts/*.rst"},
			relativePath: filepath.Join("drafts", "idea.rst"),
			want:         true,
		},
		{
			name:         "question mark wildcard",
			patterns:     []string{"?.md"},
			relativePath: "a.md",
			want:         true,
		},
		{
			name:         "question mark does not match multiple chars",
			patterns:     []string{"?.md"},
			relativePath: "ab.md",
			want:         false,
		},
		{
			name:         "character class",
			patterns:     []string{"*.r[sx]t"},
			relativePath: "guide.rst",
			want:         true,
		},
		{
			name:         "no patterns matches nothing",
			patterns:     nil,
			relativePath: "anything.rst",
			want:         false,
		},
		{
			name:         "empty string path",
			patterns:     []string{"*.bak"},
			relativePath: "",
			want:         false,
		},
		{
			name:         "anchored pattern matches at root",
			patterns:     []string{"/drafts"},
			relativePath: "drafts",
			want:         true,
		},
		{
			name:         "anchored pattern does not match nested",
			patterns:     []string{"/drafts"},
			relativePath: filepath.Join("docs", "drafts"),
			want:         false,
		},
		{
			name:         "malformed pattern never matches",
			patterns:     []string{"[", "*.rst"},
			relativePath: "guide.md",
			want:         false,
		},
		{
			name:         "multiple patterns first matches",
			patterns:     []string{"*.bak", "*.swp"},
			relativePath: "intro.bak",
			want:         true,
		},
		{
			name:         "multiple patterns second matches",
			patterns:     []string{"*.bak", "*.swp"},
			relativePath: "guide.rst.swp",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			got := m.Match(tt.relativePath)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, IgnoreFileName)
		content := "drafts\n# comment\n\n*.tmp\nnotes/old.rst\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}

		// Verify the matcher filters correctly
		m := NewIgnoreMatcher(patterns)
		if len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile("/nonexistent/.gitpubignore")
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}

func TestLoadIgnoreMatcher(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("drafts\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadIgnoreMatcher(root, []string{"*.swp"})
	if err != nil {
		t.Fatalf("LoadIgnoreMatcher() error = %v", err)
	}

	for path, want := range map[string]bool{
		".git":                              true,
		".gitpub":                           true,
		IgnoreFileName:                      true,
		"scratch.tmp":                       true,
		filepath.Join("docs", "drafts"):     true,
		filepath.Join("docs", "guide.rst"):  false,
		filepath.Join("docs", "gitpub.rst"): false,
	} {
		if got := m.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}
