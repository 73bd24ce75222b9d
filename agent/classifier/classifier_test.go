package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

type fakeSemantic struct {
	calls    atomic.Int64
	decision contractx.SemanticDecision
	err      error

	mu       sync.Mutex
	lastText string
}

func (f *fakeSemantic) Classify(ctx context.Context, text string, catalog []contractx.RoleInfo, sctx contractx.SessionContext) (contractx.SemanticDecision, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	if f.err != nil {
		return contractx.SemanticDecision{}, f.err
	}
	return f.decision, nil
}

func (f *fakeSemantic) seenText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

func TestQuickRouteSkipsSemanticTier(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleQuestionGenerator, Confidence: 0.99}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	cases := []struct {
		text string
		req  contractx.Request
		want contractx.AgentRole
	}{
		{text: "What is 2 + 2?", want: contractx.RoleGeneralKnowledge},
		{text: "Please calculate the derivative of x^2", want: contractx.RoleGeneralKnowledge},
		{
			text: "Compare these two contracts",
			req:  contractx.Request{DocumentRefs: []string{"doc-a", "doc-b"}},
			want: contractx.RoleDocumentComparison,
		},
		{text: "Generate questions from this report", want: contractx.RoleQuestionGenerator},
		{
			text: "Extract the payment terms",
			req:  contractx.Request{DocumentRefs: []string{"doc-a"}},
			want: contractx.RoleInformationExtractor,
		},
	}

	for _, tc := range cases {
		req := tc.req
		req.SessionID = "s1"
		req.Text = tc.text

		decision, err := c.Classify(context.Background(), req, contractx.SessionContext{})
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.text, err)
		}
		if decision.Source != contractx.SourceQuickRoute {
			t.Errorf("Classify(%q) source = %q, want quick_route", tc.text, decision.Source)
		}
		if decision.Target != tc.want {
			t.Errorf("Classify(%q) target = %q, want %q", tc.text, decision.Target, tc.want)
		}
	}

	if n := sem.calls.Load(); n != 0 {
		t.Fatalf("semantic tier called %d times on quick-route texts, want 0", n)
	}
}

func TestClassifyPrimaryIsFirstStage(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleComparisonAnalyst, Confidence: 0.8}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	texts := []string{
		"What is 2 + 2?",
		"Generate questions about chapter three",
		"Summarize how these trends relate",
	}
	for i, text := range texts {
		req := contractx.Request{SessionID: "s1", Text: fmt.Sprintf("%s #%d", text, i)}
		decision, err := c.Classify(context.Background(), req, contractx.SessionContext{})
		if err != nil {
			t.Fatalf("Classify(%q): %v", text, err)
		}
		stages := decision.Stages()
		if len(stages) == 0 {
			t.Fatalf("Classify(%q) produced no stages", text)
		}
		if stages[0] != decision.Primary {
			t.Errorf("Classify(%q): first stage %q != primary %q", text, stages[0], decision.Primary)
		}
	}
}

func TestComparisonRequestExpandsPipeline(t *testing.T) {
	c := New(Config{ConfidenceThreshold: 0.45}, &fakeSemantic{})

	req := contractx.Request{
		SessionID:    "s1",
		Text:         "Compare document A versus document B",
		DocumentRefs: []string{"doc-a", "doc-b"},
	}
	decision, err := c.Classify(context.Background(), req, contractx.SessionContext{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if decision.Target != contractx.RoleDocumentComparison {
		t.Fatalf("target = %q, want document comparison", decision.Target)
	}
	want := []contractx.AgentRole{
		contractx.RoleInformationExtractor,
		contractx.RoleDocumentComparison,
		contractx.RoleComparisonAnalyst,
	}
	if len(decision.Pipeline) != len(want) {
		t.Fatalf("pipeline = %v, want %v", decision.Pipeline, want)
	}
	for i := range want {
		if decision.Pipeline[i] != want[i] {
			t.Fatalf("pipeline = %v, want %v", decision.Pipeline, want)
		}
	}
	if decision.Primary != contractx.RoleInformationExtractor {
		t.Errorf("primary = %q, want information extractor", decision.Primary)
	}
}

func TestComparisonKeywordWithoutDocumentsFallsThrough(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleGeneralKnowledge, Confidence: 0.7}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	req := contractx.Request{SessionID: "s1", Text: "Compare cats and dogs as pets"}
	decision, err := c.Classify(context.Background(), req, contractx.SessionContext{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if sem.calls.Load() != 1 {
		t.Fatalf("semantic tier calls = %d, want 1", sem.calls.Load())
	}
	if decision.Source != contractx.SourceSemanticClassifier {
		t.Errorf("source = %q, want semantic_classifier", decision.Source)
	}
}

func TestEmptyTextYieldsSyntheticDecision(t *testing.T) {
	sem := &fakeSemantic{}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	for _, text := range []string{"", "   ", "\n\t"} {
		decision, err := c.Classify(context.Background(), contractx.Request{SessionID: "s1", Text: text}, contractx.SessionContext{})
		if err != nil {
			t.Fatalf("Classify(%q): %v", text, err)
		}
		if decision.Target != contractx.RoleGeneralKnowledge {
			t.Errorf("Classify(%q) target = %q, want general knowledge", text, decision.Target)
		}
		if decision.Source != contractx.SourceQuickRoute {
			t.Errorf("Classify(%q) source = %q, want quick_route", text, decision.Source)
		}
		if decision.Confidence >= 0.45 {
			t.Errorf("Classify(%q) confidence = %.2f, want low", text, decision.Confidence)
		}
	}
	if n := sem.calls.Load(); n != 0 {
		t.Fatalf("semantic tier called %d times on empty text, want 0", n)
	}
}

func TestLowConfidenceDefaultsToGeneralKnowledge(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleQuestionGenerator, Confidence: 0.2}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	decision, err := c.Classify(context.Background(), contractx.Request{SessionID: "s1", Text: "hmm, something vague"}, contractx.SessionContext{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if decision.Target != contractx.RoleGeneralKnowledge {
		t.Errorf("target = %q, want general knowledge", decision.Target)
	}
	if decision.Rationale == "" {
		t.Error("expected a rationale explaining the default")
	}
}

func TestUnknownSemanticRoleDefaultsToGeneralKnowledge(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: "time_traveler", Confidence: 0.95}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	decision, err := c.Classify(context.Background(), contractx.Request{SessionID: "s1", Text: "hmm, something vague"}, contractx.SessionContext{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if decision.Target != contractx.RoleGeneralKnowledge {
		t.Errorf("target = %q, want general knowledge", decision.Target)
	}
}

func TestSemanticFailureReturnsClassificationError(t *testing.T) {
	sem := &fakeSemantic{err: errors.New("model unavailable")}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	_, err := c.Classify(context.Background(), contractx.Request{SessionID: "s1", Text: "hmm, something vague"}, contractx.SessionContext{})
	if !errors.Is(err, contractx.ErrClassification) {
		t.Fatalf("err = %v, want ErrClassification", err)
	}
}

func TestSemanticDecisionIsCached(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleQuestionGenerator, Confidence: 0.9}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	req := contractx.Request{SessionID: "s1", Text: "hmm, something vague"}
	for i := 0; i < 3; i++ {
		decision, err := c.Classify(context.Background(), req, contractx.SessionContext{})
		if err != nil {
			t.Fatalf("Classify #%d: %v", i, err)
		}
		if decision.Target != contractx.RoleQuestionGenerator {
			t.Fatalf("Classify #%d target = %q", i, decision.Target)
		}
	}
	if n := sem.calls.Load(); n != 1 {
		t.Fatalf("semantic tier calls = %d, want 1 (cache hit)", n)
	}
}

func TestOversizedTextIsTruncatedForClassification(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleQuestionGenerator, Confidence: 0.9}}
	c := New(Config{ConfidenceThreshold: 0.45, MaxClassifyChars: 32}, sem)

	long := "please ponder this rambling unmatched text "
	for len(long) < 400 {
		long += long
	}
	decision, err := c.Classify(context.Background(), contractx.Request{SessionID: "s1", Text: long}, contractx.SessionContext{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if decision.Target != contractx.RoleQuestionGenerator {
		t.Errorf("target = %q, want question generator", decision.Target)
	}
	if got := sem.seenText(); len(got) > 32 {
		t.Fatalf("semantic tier saw %d bytes, want at most 32", len(got))
	}
}

func TestTruncationNeverSplitsRunes(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleQuestionGenerator, Confidence: 0.9}}
	c := New(Config{ConfidenceThreshold: 0.45, MaxClassifyChars: 10}, sem)

	// 3-byte runes; 10 is not a multiple of 3, so a byte-boundary cut would
	// split the fourth rune.
	text := strings.Repeat("世", 8)
	if _, err := c.Classify(context.Background(), contractx.Request{SessionID: "s1", Text: text}, contractx.SessionContext{}); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	got := sem.seenText()
	if got == "" {
		t.Fatal("semantic tier saw no text")
	}
	if len(got) > 10 {
		t.Fatalf("semantic tier saw %d bytes, want at most 10", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("semantic tier saw invalid UTF-8: %q", got)
	}
}

func TestSemanticCacheIsScopedPerSession(t *testing.T) {
	sem := &fakeSemantic{decision: contractx.SemanticDecision{Role: contractx.RoleQuestionGenerator, Confidence: 0.9}}
	c := New(Config{ConfidenceThreshold: 0.45}, sem)

	text := "hmm, something vague"
	for _, sessionID := range []string{"s1", "s2", "s1"} {
		req := contractx.Request{SessionID: sessionID, Text: text}
		sctx := contractx.SessionContext{SessionID: sessionID}
		if _, err := c.Classify(context.Background(), req, sctx); err != nil {
			t.Fatalf("Classify(%s): %v", sessionID, err)
		}
	}

	// One call per session: s2 must not replay s1's decision, while s1's
	// second request hits its own cache entry.
	if n := sem.calls.Load(); n != 2 {
		t.Fatalf("semantic tier calls = %d, want 2", n)
	}
}
