package extractors

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

func TestTokenizeDropsPunctuationAndSingleRunes(t *testing.T) {
	got := Tokenize("Sign-off takes 3 weeks; a BIM 360 sync!")
	want := []string{"sign", "off", "takes", "weeks", "bim", "360", "sync"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDocumentSeparatesTitle(t *testing.T) {
	doc := NewDocument("Approval delays", "The approval of drawings is slow")
	if len(doc.TitleTokens) != 2 {
		t.Fatalf("expected 2 title tokens, got %v", doc.TitleTokens)
	}
	for _, tok := range doc.ContentTokens {
		if tok == "the" || tok == "is" {
			t.Fatalf("stopword %q leaked into content tokens", tok)
		}
	}
	if doc.Empty() {
		t.Fatalf("document should not be empty")
	}
	if NewDocument("", "  ").Empty() != true {
		t.Fatalf("blank document should be empty")
	}
}

func TestTermSetPrefixAndPhraseMatching(t *testing.T) {
	set := NewTermSet(T("approv*"), W("sign off", 2), T("bim 360"))
	tokens := Tokenize("Approvals need sign-off; approver is out. BIM 360 down")

	hits := set.Match(tokens)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %+v", hits)
	}
	if got := set.Score(tokens); got != 2+2+1 {
		t.Fatalf("unexpected score %v", got)
	}
	if diff := cmp.Diff([]string{"approv", "bim 360", "sign off"}, HitPatterns(hits)); diff != "" {
		t.Fatalf("patterns mismatch (-want +got):\n%s", diff)
	}
	if HitCount(hits) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", HitCount(hits))
	}
	if set.Contains(Tokenize("nothing relevant here")) {
		t.Fatalf("unexpected match")
	}
}

func TestRootCauseVocabularyCoversEveryCause(t *testing.T) {
	for _, rc := range models.RootCauses {
		if len(RootCauseTerms[rc].Patterns()) == 0 {
			t.Fatalf("root cause %s has no vocabulary", rc)
		}
	}
	for _, d := range models.Departments {
		if len(DepartmentTerms[d].Patterns()) == 0 {
			t.Fatalf("department %s has no vocabulary", d)
		}
	}
}

func TestApprovalParaphrasesShareConceptAxes(t *testing.T) {
	a := NewDocument("Approval workflow delays", "Drawing approvals wait for weeks")
	b := NewDocument("Slow sign-off process", "Sign-off on sheets is held up")
	for _, axis := range []int{0, 1, 2} {
		if !ConceptAxes[axis].Contains(a.Tokens) || !ConceptAxes[axis].Contains(b.Tokens) {
			t.Fatalf("axis %d not shared by paraphrases", axis)
		}
	}
}

func TestNormalizeDepartment(t *testing.T) {
	cases := map[string]string{
		"Structural Engineering": "STRUCTURAL",
		"mep":                    "MEP",
		"INTERIOR_DESIGN":        "INTERIOR_DESIGN",
		"Project Management":     "PROJECT_MANAGEMENT",
		"IT":                     "IT",
	}
	for in, want := range cases {
		got, ok := NormalizeDepartment(in)
		if !ok || got != want {
			t.Fatalf("NormalizeDepartment(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := NormalizeDepartment("marketing"); ok {
		t.Fatalf("unknown department should not normalise")
	}
}

func TestDepartmentScoresPreferDeclared(t *testing.T) {
	doc := NewDocument("Beam sizes wrong", "The structural beam schedule has errors")
	scores := DepartmentScores(doc, []string{"architecture"}, map[string]string{"department": "architecture"})
	if PrimaryDepartment(scores) != "ARCHITECTURE" {
		t.Fatalf("declared department should win, got %v", scores)
	}
	if scores["STRUCTURAL"] == 0 {
		t.Fatalf("text mention should still score structural")
	}
}

func TestDetectPhase(t *testing.T) {
	phase, _ := DetectPhase(NewDocument("RFI backlog", "Contractor RFIs on site pile up"), nil)
	if phase != "CONSTRUCTION" {
		t.Fatalf("expected CONSTRUCTION, got %q", phase)
	}
	phase, _ = DetectPhase(NewDocument("Generic", "nothing here"), map[string]string{"projectPhase": "documentation"})
	if phase != "DOCUMENTATION" {
		t.Fatalf("metadata phase ignored, got %q", phase)
	}
}

func TestMeasureScope(t *testing.T) {
	narrow := NewDocument("Printer jam", "The plotter jams on A1 sheets")
	broad := NewDocument("Firm wide restructure", "We need hiring across multiple departments and a budget overhaul of every team")

	ns := MeasureScope(narrow, DepartmentScores(narrow, nil, nil))
	bs := MeasureScope(broad, map[string]float64{"ARCHITECTURE": 3, "MEP": 3, "IT": 3, "OPERATIONS": 1})
	if ns.Complexity >= bs.Complexity {
		t.Fatalf("broad scope %v should exceed narrow %v", bs.Complexity, ns.Complexity)
	}
	if bs.DepartmentSpread != 4 {
		t.Fatalf("expected spread 4, got %d", bs.DepartmentSpread)
	}
	if bs.Complexity > 1 || ns.Complexity < 0 {
		t.Fatalf("scope out of range: %v %v", ns.Complexity, bs.Complexity)
	}
}

func TestEntityExtractor(t *testing.T) {
	ex := NewEntityExtractor()
	got := ex.Extract(
		"Revit crashes on Project Harbor",
		"Client Northwind Traders escalated. The Project Management team uses Bluebeam for redlines.",
		map[string]string{"vendor": "Dell", "project": "Atlas"},
	)
	want := models.LinkedEntities{
		Vendors:  []string{"Autodesk", "Bluebeam", "Dell"},
		Projects: []string{"Atlas", "Harbor"},
		Clients:  []string{"Northwind Traders"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entities mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEntities(t *testing.T) {
	got := MergeEntities(
		models.LinkedEntities{Vendors: []string{"Autodesk"}},
		models.LinkedEntities{Vendors: []string{"Autodesk", "Procore"}, Clients: []string{"Acme"}},
	)
	if diff := cmp.Diff([]string{"Autodesk", "Procore"}, got.Vendors); diff != "" {
		t.Fatalf("vendors mismatch (-want +got):\n%s", diff)
	}
	if got.Projects != nil {
		t.Fatalf("expected no projects, got %v", got.Projects)
	}
}

func TestSaturateAndClamp(t *testing.T) {
	if Saturate(0, 2) != 0 || Saturate(-1, 2) != 0 {
		t.Fatalf("saturate of non-positive should be 0")
	}
	if s := Saturate(100, 2); s <= 0.99 || s >= 1.0000001 {
		t.Fatalf("saturate should approach 1, got %v", s)
	}
	if Clamp01(2) != 1 || Clamp01(-2) != 0 {
		t.Fatalf("clamp out of bounds")
	}
}
