package extractors

import (
	"regexp"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// productVendors maps tool names found in signal text to their vendor.
var productVendors = map[string]string{
	"revit":        "Autodesk",
	"autocad":      "Autodesk",
	"navisworks":   "Autodesk",
	"bim 360":      "Autodesk",
	"civil 3d":     "Autodesk",
	"bluebeam":     "Bluebeam",
	"procore":      "Procore",
	"rhino":        "McNeel",
	"grasshopper":  "McNeel",
	"archicad":     "Graphisoft",
	"enscape":      "Chaos",
	"vray":         "Chaos",
	"sketchup":     "Trimble",
	"tekla":        "Trimble",
	"microstation": "Bentley",
	"newforma":     "Newforma",
	"deltek":       "Deltek",
	"sharepoint":   "Microsoft",
	"egnyte":       "Egnyte",
}

var (
	projectPattern = regexp.MustCompile(`\b[Pp]roject\s+([A-Z][\w-]+)`)
	clientPattern  = regexp.MustCompile(`\b[Cc]lient\s+([A-Z][\w&-]+(?:\s+[A-Z][\w&-]+)?)`)
)

var entityStoplist = toSet(
	"management", "manager", "managers", "team", "teams", "phase", "schedule", "lead",
	"leads", "delivery", "budget", "kickoff", "meeting", "meetings", "review", "reviews",
	"architect", "director", "coordinator", "portal", "feedback", "expectations",
	"requests", "request", "approval", "approvals", "the", "our", "this",
)

// EntityExtractor pulls vendor, project and client references from signal text and metadata.
type EntityExtractor struct {
	vendors map[string]string
}

// NewEntityExtractor returns an extractor seeded with the built-in vendor catalogue.
func NewEntityExtractor() *EntityExtractor {
	vendors := make(map[string]string, len(productVendors))
	for product, vendor := range productVendors {
		vendors[product] = vendor
	}
	return &EntityExtractor{vendors: vendors}
}

// Extract returns deduplicated, sorted entities for one signal.
func (e *EntityExtractor) Extract(title, body string, metadata map[string]string) models.LinkedEntities {
	text := title + "\n" + body
	tokens := Tokenize(text)

	vendors := map[string]struct{}{}
	for product, vendor := range e.vendors {
		if countPattern(tokens, strings.Fields(product)) > 0 {
			vendors[vendor] = struct{}{}
		}
	}
	if v := strings.TrimSpace(metadata["vendor"]); v != "" {
		vendors[v] = struct{}{}
	}

	projects := map[string]struct{}{}
	for _, m := range projectPattern.FindAllStringSubmatch(text, -1) {
		if name := cleanEntity(m[1]); name != "" {
			projects[name] = struct{}{}
		}
	}
	if p := strings.TrimSpace(metadata["project"]); p != "" {
		projects[p] = struct{}{}
	}

	clients := map[string]struct{}{}
	for _, m := range clientPattern.FindAllStringSubmatch(text, -1) {
		if name := cleanEntity(m[1]); name != "" {
			clients[name] = struct{}{}
		}
	}
	if c := strings.TrimSpace(metadata["client"]); c != "" {
		clients[c] = struct{}{}
	}

	return models.LinkedEntities{
		Vendors:  sortedKeys(vendors),
		Projects: sortedKeys(projects),
		Clients:  sortedKeys(clients),
	}
}

func cleanEntity(raw string) string {
	words := strings.Fields(raw)
	kept := words[:0]
	for _, w := range words {
		if _, stop := entityStoplist[strings.ToLower(w)]; stop {
			break
		}
		kept = append(kept, strings.TrimRight(w, "-"))
	}
	return strings.Join(kept, " ")
}

// MergeEntities unions entity lists, keeping them sorted.
func MergeEntities(all ...models.LinkedEntities) models.LinkedEntities {
	vendors, projects, clients := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for _, e := range all {
		for _, v := range e.Vendors {
			vendors[v] = struct{}{}
		}
		for _, p := range e.Projects {
			projects[p] = struct{}{}
		}
		for _, c := range e.Clients {
			clients[c] = struct{}{}
		}
	}
	return models.LinkedEntities{
		Vendors:  sortedKeys(vendors),
		Projects: sortedKeys(projects),
		Clients:  sortedKeys(clients),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
