package diagnostics

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// maxContinuation caps how many follow-up lines (source excerpt, caret,
// fix-it hints) are folded into a diagnostic message.
const maxContinuation = 3

var (
	// path:line[:col]: severity: message
	locatedRe = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?:\s*(?i:(fatal error|error|warning|note)):\s*(.*)$`)

	// [prefix: ]severity: message
	unlocatedRe = regexp.MustCompile(`^(?:(\S[^:]*?):\s+)?(?i:(fatal error|error|warning|note)):\s*(.*)$`)

	// Lines that carry no diagnostic information of their own.
	noiseRes = []*regexp.Regexp{
		regexp.MustCompile(`^\*\* .+ \*\*$`),
		regexp.MustCompile(`^\d+ (errors?|warnings?)( and \d+ (errors?|warnings?))? generated\.?$`),
		regexp.MustCompile(`^\d+ (errors?|warnings?)(, \d+ (errors?|warnings?))*\.?$`),
		regexp.MustCompile(`^=== .+ ===$`),
		regexp.MustCompile(`^The following build commands failed:`),
		regexp.MustCompile(`^\(\d+ failures?\)$`),
		regexp.MustCompile(`^(Command line invocation|Build settings from command line|User defaults from command line|Prepare packages|Computing target dependency graph|Resolve Package Graph|Build description|Writing result bundle)`),
		regexp.MustCompile(`^(CompileSwift|CompileSwiftSources|SwiftCompile|SwiftDriver|SwiftEmitModule|SwiftGeneratePch|EmitSwiftModule|CompileC|CompileAssetCatalog|CompileStoryboard|Ld|Libtool|CodeSign|CpResource|CopySwiftLibs|ProcessInfoPlistFile|ProcessProductPackaging|PhaseScriptExecution|GenerateDSYMFile|RegisterExecutionPolicyException|Validate|Touch|MkDir|CreateBuildDirectory|WriteAuxiliaryFile|ExtractAppIntentsMetadata|LinkAssetCatalog|GenerateAssetSymbols|ClangStatCache|CreateUniversalBinary) `),
		regexp.MustCompile(`^\s*(cd|export|builtin-\S+|/Applications/Xcode\S*/\S+) `),
	}
)

// Parse converts raw build output into diagnostics in order of appearance.
// It never fails: lines it cannot classify are dropped or folded into the
// preceding diagnostic as continuation text. Duplicates are kept.
func Parse(raw string) []Diagnostic {
	out := make([]Diagnostic, 0)
	open := -1
	cont := 0

	closeOpen := func() {
		open = -1
		cont = 0
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")

		if strings.TrimSpace(line) == "" || isNoise(line) {
			closeOpen()
			continue
		}

		if d, ok := parseLocated(line); ok {
			out = append(out, d)
			open, cont = len(out)-1, 0
			continue
		}

		if d, ok := parseUnlocated(line); ok {
			out = append(out, d)
			open, cont = len(out)-1, 0
			continue
		}

		if open >= 0 && cont < maxContinuation {
			out[open].Message += "\n" + line
			cont++
		}
	}
	return out
}

func isNoise(line string) bool {
	for _, re := range noiseRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func parseLocated(line string) (Diagnostic, bool) {
	m := locatedRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Diagnostic{}, false
	}
	lineNo, err := strconv.Atoi(m[2])
	if err != nil || lineNo <= 0 {
		return Diagnostic{}, false
	}
	col := 0
	if m[3] != "" {
		col, _ = strconv.Atoi(m[3])
	}
	return Diagnostic{
		Severity: severityOf(m[4]),
		File:     m[1],
		Line:     lineNo,
		Column:   col,
		Message:  messageOr(m[5], line),
	}, true
}

func parseUnlocated(line string) (Diagnostic, bool) {
	trimmed := strings.TrimSpace(line)
	m := unlocatedRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Diagnostic{}, false
	}
	d := Diagnostic{
		Severity: severityOf(m[2]),
		Message:  messageOr(m[3], trimmed),
	}
	if looksLikePath(m[1]) {
		d.File = m[1]
	} else if m[1] != "" {
		// Keep the tool name so "ld: ..." and "clang: ..." stay readable.
		d.Message = m[1] + ": " + d.Message
	}
	return d, true
}

func severityOf(s string) Severity {
	switch strings.ToLower(s) {
	case "warning":
		return SeverityWarning
	case "note":
		return SeverityNote
	default:
		return SeverityError
	}
}

func messageOr(msg, fallback string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return strings.TrimSpace(fallback)
	}
	return msg
}

// looksLikePath accepts tokens with a directory separator or a file
// extension, e.g. "Sources/App.swift" or "Info.plist".
func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	if strings.Contains(s, "/") {
		return true
	}
	ext := path.Ext(s)
	return len(ext) > 1 && ext != s
}
