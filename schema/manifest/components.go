package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// digest fingerprints a property shape. Properties are sorted by name
// at construction, so the JSON form is canonical.
func digest(properties []Property) (string, error) {
	payload, err := json.Marshal(properties)
	if err != nil {
		return "", fmt.Errorf("manifest: fingerprinting properties: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// extractComponents moves repeated property shapes into the component
// table and rewrites the owning types to $ref them. A shape is extracted
// when at least two types share it, or when one of its types was forced.
func extractComponents(doc *Document, forced []string) error {
	force := make(map[string]bool, len(forced))
	for _, name := range forced {
		force[strings.TrimSpace(name)] = true
	}

	groups := map[string][]string{}
	for name, schema := range doc.Types {
		if len(schema.Properties) == 0 {
			continue
		}
		sum, err := digest(schema.Properties)
		if err != nil {
			return err
		}
		groups[sum] = append(groups[sum], name)
	}

	sums := make([]string, 0, len(groups))
	for sum := range groups {
		sums = append(sums, sum)
	}
	sort.Strings(sums)

	used := map[string]bool{}
	for _, sum := range sums {
		members := groups[sum]
		sort.Strings(members)

		extract := len(members) >= 2
		if !extract {
			for _, member := range members {
				if force[member] {
					extract = true
					break
				}
			}
		}
		if !extract {
			continue
		}

		componentName := uniqueName(shortName(members[0]), used)
		doc.Components[componentName] = Component{
			Properties: doc.Types[members[0]].Properties,
		}
		for _, member := range members {
			schema := doc.Types[member]
			schema.Ref = componentRef(componentName)
			schema.Properties = nil
			doc.Types[member] = schema
		}
	}
	return nil
}

func componentRef(name string) string {
	return "#/components/" + name
}

func typeRef(name string) string {
	return "#/types/" + name
}

func shortName(typeName string) string {
	if idx := strings.LastIndex(typeName, "."); idx >= 0 {
		return typeName[idx+1:]
	}
	return typeName
}

func uniqueName(base string, used map[string]bool) string {
	name := nameSanitizer.ReplaceAllString(base, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "Component"
	}
	if first, _ := firstRune(name); unicode.IsDigit(first) {
		name = "T" + name
	}
	candidate := name
	for suffix := 2; used[candidate]; suffix++ {
		candidate = fmt.Sprintf("%s%d", name, suffix)
	}
	used[candidate] = true
	return candidate
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, 1
	}
	return 0, 0
}
