package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

type fakeMessages struct {
	text   string
	err    error
	params anthropic.MessageNewParams
	calls  int
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	f.params = body
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: f.text}}}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func permitRequest() TagRequest {
	return TagRequest{
		Signal: models.Signal{
			ID:          "sig-1",
			Title:       "Permit approval delay",
			Description: "City permit review for Project Atlas stalled; approval resubmittal needed after Revit sheet comments.",
		},
		Classification: models.DomainClassificationResult{
			RootCause:    models.RootCauseProcess,
			Department:   "Architecture",
			ProjectPhase: "DOCUMENTATION",
			MatchedTerms: []string{"permit", "approval"},
		},
	}
}

func TestKeywordTaggerOrdersAndDedupes(t *testing.T) {
	tagger := NewKeywordTagger(6)
	tags, err := tagger.Tags(context.Background(), permitRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"process", "architecture", "documentation", "permit", "approval", "autodesk"}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestNormaliseTags(t *testing.T) {
	got := normaliseTags([]string{"  QA Review ", "qa review", "#BIM", "", strings.Repeat("x", 50), "Staffing"}, 10)
	want := []string{"qa-review", "bim", "staffing"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalised tags mismatch (-want +got):\n%s", diff)
	}
}

func TestAnthropicTaggerParsesFencedJSON(t *testing.T) {
	fake := &fakeMessages{text: "```json\n{\"tags\": [\"Permitting\", \"consultant coordination\"]}\n```"}
	tagger := newAnthropicTagger(fake, "", 4, nil, quietLogger())

	tags, err := tagger.Tags(context.Background(), permitRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"permitting", "consultant-coordination"}, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if string(fake.params.Model) != DefaultModel {
		t.Fatalf("expected default model, got %s", fake.params.Model)
	}
}

func TestAnthropicTaggerAcceptsBareArray(t *testing.T) {
	fake := &fakeMessages{text: `["revit", "model health"]`}
	tagger := newAnthropicTagger(fake, "custom-model", 4, nil, quietLogger())
	tags, err := tagger.Tags(context.Background(), permitRequest())
	if err != nil || !cmp.Equal(tags, []string{"revit", "model-health"}) {
		t.Fatalf("unexpected tags %v, %v", tags, err)
	}
}

func TestAnthropicTaggerFallsBack(t *testing.T) {
	fake := &fakeMessages{err: errors.New("overloaded")}
	tagger := newAnthropicTagger(fake, "", 3, NewKeywordTagger(3), quietLogger())

	tags, err := tagger.Tags(context.Background(), permitRequest())
	if err != nil {
		t.Fatalf("fallback should absorb the error: %v", err)
	}
	if diff := cmp.Diff([]string{"process", "architecture", "documentation"}, tags); diff != "" {
		t.Fatalf("fallback tags mismatch (-want +got):\n%s", diff)
	}
}

func TestAnthropicTaggerWithoutFallbackReturnsError(t *testing.T) {
	fake := &fakeMessages{text: "not json"}
	tagger := newAnthropicTagger(fake, "", 3, nil, quietLogger())
	if _, err := tagger.Tags(context.Background(), permitRequest()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewTaggerSelection(t *testing.T) {
	if NewTagger(Config{}, quietLogger()).Name() != "keyword" {
		t.Fatal("default tagger should be keyword")
	}
	if NewTagger(Config{Provider: "anthropic"}, quietLogger()).Name() != "keyword" {
		t.Fatal("anthropic without key should fall back to keyword")
	}
	if NewTagger(Config{Provider: "anthropic", APIKey: "k"}, quietLogger()).Name() != "anthropic" {
		t.Fatal("anthropic with key should use anthropic tagger")
	}
}
