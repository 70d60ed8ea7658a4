package intent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// SimilarityClassifier is a deterministic, concurrency-safe classifier that
// labels text by Jaccard similarity against a small set of example phrases:
// score = |Q ∩ E| / |Q ∪ E|. It is immutable after construction.
type SimilarityClassifier struct {
	cfg      config
	examples []example
}

type example struct {
	label  Label
	text   string
	tokens map[string]struct{}
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minScore  float64
	stopwords map[string]struct{}
}

func defaultConfig() config {
	return config{
		minScore:  0.25,
		stopwords: nil,
	}
}

// WithMinScore sets the similarity an example must reach to be chosen.
// Values outside (0, 1] are ignored.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s > 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// WithStopwords drops the given words from both examples and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = Normalize(w)
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Construction

// NewSimilarityClassifier builds a classifier from label → example phrases.
func NewSimilarityClassifier(examples map[Label][]string, opts ...Option) *SimilarityClassifier {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	labels := make([]Label, 0, len(examples))
	for l := range examples {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(a, b int) bool { return labels[a] < labels[b] })

	c := &SimilarityClassifier{cfg: cfg}
	for _, l := range labels {
		for _, phrase := range examples[l] {
			toks := tokenize(phrase, cfg.stopwords)
			if len(toks) == 0 {
				continue
			}
			c.examples = append(c.examples, example{label: l, text: Normalize(phrase), tokens: toks})
		}
	}
	return c
}

var lineRE = regexp.MustCompile(`^\s*([a-z_]+)\s*:\s*(.+?)\s*$`)

// NewSimilarityClassifierFromReader reads "label: phrase" lines. Blank lines
// and lines starting with '#' are skipped; unknown labels are an error.
func NewSimilarityClassifierFromReader(r io.Reader, opts ...Option) (*SimilarityClassifier, error) {
	examples := make(map[Label][]string)
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := lineRE.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: expected \"label: phrase\"", n)
		}
		l := Label(m[1])
		if !l.Valid() {
			return nil, fmt.Errorf("line %d: unknown label %q", n, m[1])
		}
		examples[l] = append(examples[l], m[2])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewSimilarityClassifier(examples, opts...), nil
}

// DefaultExamples is the built-in Spanish phrase set.
func DefaultExamples() map[Label][]string {
	return map[Label][]string{
		Greeting:    {"hola", "buenas", "buen dia", "buenas tardes", "buenas noches", "que tal", "hola quiero cotizar", "necesito cajas"},
		Individual:  {"particular", "soy particular", "persona", "para mi", "uso personal", "consumidor final"},
		Company:     {"empresa", "soy de una empresa", "negocio", "comercio", "somos una empresa", "pyme", "fabrica"},
		Confirm:     {"confirmar", "confirmo", "acepto", "de acuerdo", "dale", "va", "me sirve", "quiero hacer el pedido"},
		Modify:      {"modificar", "cambiar medidas", "otra medida", "quiero cambiar", "corregir", "otra cotizacion"},
		Advisor:     {"asesor", "hablar con alguien", "una persona", "vendedor", "humano", "atencion personalizada", "llamenme"},
		Cancel:      {"cancelar", "salir", "reiniciar", "empezar de nuevo", "olvidalo"},
		Thanks:      {"gracias", "muchas gracias", "ok gracias", "listo", "perfecto gracias", "chau", "hasta luego"},
		PrintingYes: {"si", "con impresion", "impresas", "con logo", "impreso", "con marca"},
		PrintingNo:  {"no", "sin impresion", "lisas", "sin logo", "sin imprimir", "liso"},
	}
}

// ----------------------------------------------------------------------------
// Classification

// Classify implements Classifier. Ties are broken by the shorter example,
// then lexically, so results are stable.
func (c *SimilarityClassifier) Classify(_ context.Context, text string, candidates []Label) (Label, float64, error) {
	q := tokenize(text, c.cfg.stopwords)
	if len(q) == 0 || len(c.examples) == 0 {
		return Unknown, 0, nil
	}
	allowed := func(Label) bool { return true }
	if len(candidates) > 0 {
		set := make(map[Label]struct{}, len(candidates))
		for _, l := range candidates {
			set[l] = struct{}{}
		}
		allowed = func(l Label) bool { _, ok := set[l]; return ok }
	}

	var (
		best      *example
		bestScore float64
	)
	for i := range c.examples {
		e := &c.examples[i]
		if !allowed(e.label) {
			continue
		}
		over := overlap(q, e.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(len(q)+len(e.tokens)-over)
		switch {
		case best == nil || score > bestScore:
		case score == bestScore && len(e.text) < len(best.text):
		case score == bestScore && len(e.text) == len(best.text) && e.text < best.text:
		default:
			continue
		}
		best, bestScore = e, score
	}
	if best == nil || bestScore < c.cfg.minScore {
		return Unknown, bestScore, nil
	}
	return best.label, bestScore, nil
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(Normalize(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
