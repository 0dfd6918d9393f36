package extractor

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

const (
	// MaxExcerptLines caps how many lines a single unit excerpt may span
	// when a declaration's end cannot be found lexically.
	MaxExcerptLines = 160
)

// Declaration patterns for exported symbols in JS/TS source. These are
// deliberately lexical; the extractor never parses the language.
var (
	exportFuncRe  = regexp.MustCompile(`^\s*export\s+(?:default\s+)?(?:async\s+)?function\s+([A-Za-z_$][\w$]*)`)
	exportClassRe = regexp.MustCompile(`^\s*export\s+(?:default\s+)?class\s+([A-Za-z_$][\w$]*)`)
	exportConstRe = regexp.MustCompile(`^\s*export\s+(?:const|let|var)\s+([A-Za-z_$][\w$]*)`)

	storeCallRe = regexp.MustCompile(`\b(?:createStore|configureStore|defineStore|createSlice|create)\s*[(<]`)
)

// Extractor converts raw file content into tagged source units using
// lightweight structural heuristics.
type Extractor struct {
	log *slog.Logger
}

// New creates an Extractor.
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract produces one or more source units for a file. Extraction never
// fails the pipeline: when no structure is recognized, or any heuristic
// misfires, the whole file is emitted as a single raw unit marked
// degraded.
func (e *Extractor) Extract(path string, content []byte, modTime time.Time) []types.SourceUnit {
	units := e.extractDeclared(path, content, modTime)
	if len(units) > 0 {
		return units
	}
	return []types.SourceUnit{rawUnit(path, content, modTime)}
}

// extractDeclared scans line by line for exported declarations and cuts
// one excerpt per declaration.
func (e *Extractor) extractDeclared(path string, content []byte, modTime time.Time) []types.SourceUnit {
	lines := strings.Split(string(content), "\n")
	text := string(content)

	var units []types.SourceUnit
	seen := map[string]bool{}

	for i, line := range lines {
		name := matchExport(line)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		excerpt := cutBlock(lines, i)
		if strings.TrimSpace(excerpt) == "" {
			continue
		}

		kind := classify(path, name, excerpt, text)
		units = append(units, types.SourceUnit{
			ID:           types.UnitID(path, name, kind),
			Path:         path,
			ContentHash:  types.HashContent([]byte(excerpt)),
			Kind:         kind,
			SymbolName:   name,
			Excerpt:      excerpt,
			LastModified: modTime,
		})
	}

	return units
}

// matchExport returns the declared symbol name when the line opens an
// exported declaration, else the empty string.
func matchExport(line string) string {
	for _, re := range []*regexp.Regexp{exportFuncRe, exportClassRe, exportConstRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// classify tags a declaration using naming conventions and file context.
// Order matters: hook naming wins over everything, store indicators beat
// the component heuristic, and anything left exported-but-unrecognized is
// a util.
func classify(path, name, excerpt, fileText string) types.Kind {
	if isHookName(name) {
		return types.KindHook
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "store") || storeCallRe.MatchString(excerpt) {
		return types.KindStore
	}
	if isPascalCase(name) && looksLikeComponent(path, excerpt, fileText) {
		return types.KindComponent
	}
	return types.KindUtil
}

// isHookName reports the conventional use-prefix: "use" followed by an
// uppercase letter, as in useState or useCartTotals.
func isHookName(name string) bool {
	if len(name) < 4 || !strings.HasPrefix(name, "use") {
		return false
	}
	c := name[3]
	return c >= 'A' && c <= 'Z'
}

func isPascalCase(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// looksLikeComponent checks for JSX evidence: a .tsx/.jsx file, a JSX
// return in the excerpt, or a React import in the file.
func looksLikeComponent(path, excerpt, fileText string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx", ".jsx":
		return true
	}
	if strings.Contains(excerpt, "return <") || strings.Contains(excerpt, "=> <") {
		return true
	}
	return strings.Contains(fileText, `from "react"`) || strings.Contains(fileText, "from 'react'")
}

// cutBlock extracts the declaration starting at line start, ending where
// its braces balance. When braces never open or never close (template
// literals, JSX oddities), it falls back to a capped line count.
func cutBlock(lines []string, start int) string {
	depth := 0
	opened := false
	end := start

	for i := start; i < len(lines) && i-start < MaxExcerptLines; i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		end = i
		if opened && depth <= 0 {
			break
		}
		// Single-line arrow constants have no block at all.
		if !opened && strings.HasSuffix(strings.TrimRight(lines[i], " \t"), ";") {
			break
		}
	}

	return strings.Join(lines[start:end+1], "\n")
}

// rawUnit wraps an entire file as one degraded raw unit. This is the
// graceful-degradation path: extraction failures never fail indexing.
func rawUnit(path string, content []byte, modTime time.Time) types.SourceUnit {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return types.SourceUnit{
		ID:           types.UnitID(path, name, types.KindRaw),
		Path:         path,
		ContentHash:  types.HashContent(content),
		Kind:         types.KindRaw,
		SymbolName:   name,
		Excerpt:      string(content),
		LastModified: modTime,
		Degraded:     true,
	}
}
