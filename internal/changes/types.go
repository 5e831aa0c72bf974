package changes

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// DuplicateType is a top-level Swift type declared in more than one file.
type DuplicateType struct {
	Name  string
	Files []string
}

// typeDeclRe matches type declarations that start a line, after any
// attributes and modifiers. Nested types are indented and not matched.
var typeDeclRe = regexp.MustCompile(`(?m)^(?:(?:@\w+(?:\([^)\n]*\))?|public|private|fileprivate|internal|open|final|indirect)\s+)*(?:class|struct|enum|protocol|actor)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// DuplicateTypes scans the project sources for type names declared at the
// top level of more than one file. Generated layers often redeclare a model
// in a second file, which fails the build with "invalid redeclaration".
func DuplicateTypes(root string, opts SnapshotOptions) ([]DuplicateType, error) {
	files, err := SourceFiles(root, opts)
	if err != nil {
		return nil, err
	}

	declared := make(map[string][]string)
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		seen := make(map[string]bool)
		for _, m := range typeDeclRe.FindAllStringSubmatch(string(data), -1) {
			name := m[1]
			if seen[name] {
				continue
			}
			seen[name] = true
			declared[name] = append(declared[name], rel)
		}
	}

	var out []DuplicateType
	for name, in := range declared {
		if len(in) > 1 {
			out = append(out, DuplicateType{Name: name, Files: in})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
