package intent

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// ---------- Normalize ----------
func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"¡Sí, GRACIAS!":        "¡si, gracias!",
		"  Buenos   días\t ":   "buenos dias",
		"Impresión a 2 COLORES": "impresion a 2 colores",
		"":                     "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_ConcurrentSafe(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Normalize("Acción Única") != "accion unica" {
				t.Errorf("bad fold")
			}
		}()
	}
	wg.Wait()
}

// ---------- Labels ----------
func TestLabelValid(t *testing.T) {
	for _, l := range Labels {
		if !l.Valid() {
			t.Fatalf("%q should be valid", l)
		}
	}
	if Label("needs_advisor").Valid() {
		t.Fatalf("unexpected label accepted")
	}
}

func TestNop(t *testing.T) {
	l, s, err := Nop{}.Classify(context.Background(), "hola", nil)
	if l != Unknown || s != 0 || err != nil {
		t.Fatalf("Nop = %v %v %v", l, s, err)
	}
}

// ---------- SimilarityClassifier ----------
func TestSimilarity_DefaultExamples(t *testing.T) {
	c := NewSimilarityClassifier(DefaultExamples())
	ctx := context.Background()
	tests := []struct {
		text       string
		candidates []Label
		want       Label
	}{
		{"Hola, buenas tardes!", nil, Greeting},
		{"quiero hablar con un asesor", nil, Advisor},
		{"somos una empresa chica", []Label{Individual, Company}, Company},
		{"es para uso personal", []Label{Individual, Company}, Individual},
		{"sí, con el logo", []Label{PrintingYes, PrintingNo}, PrintingYes},
		{"lisas sin impresión", []Label{PrintingYes, PrintingNo}, PrintingNo},
		{"muchas gracias", nil, Thanks},
		{"xyzzy plugh", nil, Unknown},
	}
	for _, tc := range tests {
		got, _, err := c.Classify(ctx, tc.text, tc.candidates)
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestSimilarity_CandidatesRestrictAnswer(t *testing.T) {
	c := NewSimilarityClassifier(DefaultExamples())
	got, _, _ := c.Classify(context.Background(), "hola", []Label{Confirm, Modify})
	if got != Unknown {
		t.Fatalf("label outside candidates returned: %s", got)
	}
}

func TestSimilarity_OptionsAndDeterminism(t *testing.T) {
	ex := map[Label][]string{
		Confirm: {"dale confirmo"},
		Modify:  {"dale cambio"},
	}
	c := NewSimilarityClassifier(ex, WithMinScore(0.9))
	if got, _, _ := c.Classify(context.Background(), "dale", nil); got != Unknown {
		t.Fatalf("score below min should be Unknown, got %s", got)
	}

	// tie: both examples share "dale" with the same score; shorter text wins
	c = NewSimilarityClassifier(ex, WithMinScore(0.1))
	first, _, _ := c.Classify(context.Background(), "dale", nil)
	for i := 0; i < 10; i++ {
		if got, _, _ := c.Classify(context.Background(), "dale", nil); got != first {
			t.Fatalf("non-deterministic tie break: %s vs %s", got, first)
		}
	}
	if first != Modify {
		t.Fatalf("tie should go to the shorter example, got %s", first)
	}

	c = NewSimilarityClassifier(map[Label][]string{Thanks: {"ok gracias"}}, WithStopwords([]string{"OK"}), WithMinScore(5))
	if got, score, _ := c.Classify(context.Background(), "ok gracias", nil); got != Thanks || score != 1 {
		t.Fatalf("stopword not removed: %s %v", got, score)
	}
}

func TestSimilarity_FromReader(t *testing.T) {
	src := `
# intents
greeting: hola que tal
advisor: quiero un vendedor
`
	c, err := NewSimilarityClassifierFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if got, _, _ := c.Classify(context.Background(), "un vendedor por favor", nil); got != Advisor {
		t.Fatalf("got %s", got)
	}

	if _, err := NewSimilarityClassifierFromReader(strings.NewReader("nonsense line")); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := NewSimilarityClassifierFromReader(strings.NewReader("weather: lluvia")); err == nil {
		t.Fatalf("expected unknown label error")
	}
}

func TestSimilarity_EmptyInputs(t *testing.T) {
	c := NewSimilarityClassifier(nil)
	if got, _, _ := c.Classify(context.Background(), "hola", nil); got != Unknown {
		t.Fatalf("empty classifier should be Unknown")
	}
	c = NewSimilarityClassifier(DefaultExamples())
	if got, _, _ := c.Classify(context.Background(), "  !!  ", nil); got != Unknown {
		t.Fatalf("punctuation only should be Unknown")
	}
}
