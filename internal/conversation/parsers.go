package conversation

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/boxquote/internal/intent"
	"github.com/tbourn/boxquote/internal/quote"
)

// Every parser takes raw user text and returns the extracted value and
// whether the text held one. Parsers never consult the classifier.

var (
	// Each side is either a thousands-grouped integer ("1.200") or a plain
	// number with up to two decimals. The leading and trailing guards stop a
	// match from starting or ending inside a longer number.
	dimsRE = regexp.MustCompile(
		`(?:^|[^\d.,])` + dimSide + dimSep + dimSide + dimSep + dimSide +
			`\s*(mm|cm|milimetros|centimetros)?(?:$|[^\d.,]|[.,](?:\D|$))`)
	thousandsRE = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)
	quantityRE  = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+|\d+`)
	milRE       = regexp.MustCompile(`^(\d{1,4})\s*mil\b`)
	colorsRE    = regexp.MustCompile(`(\d+)\s*colou?r(?:es|s)?\b`)
	menuRE      = regexp.MustCompile(`^(?:opcion\s*|la\s+)?([1-9])\s*[.)-]?$`)
	emailRE     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	labelRE     = regexp.MustCompile(`^\s*([\p{L} ]{3,20}?)\s*[:=]\s*(.+?)\s*$`)
	nameRE      = regexp.MustCompile(`^[\p{L}][\p{L}'. -]{1,79}$`)
)

const (
	dimSide = `(\d{1,3}(?:[.,]\d{3})+|\d{1,6}(?:[.,]\d{1,2})?)`
	dimSep  = `\s*(?:x|×|\*|por)\s*`
)

var namePrefixes = []string{"mi nombre es ", "me llamo ", "soy ", "nombre: ", "nombre "}

// MaxQuantity caps quantities typed in chat.
const MaxQuantity = 1_000_000

// parseDimensions reads "L x W x H" in millimetres, or centimetres when the
// unit says so. Unit-less values all under 100 are read as centimetres since
// no valid side is that small in millimetres. Length and width are swapped
// when needed so length >= width.
func parseDimensions(text string) (l, w, h int, ok bool) {
	m := dimsRE.FindStringSubmatch(intent.Normalize(text))
	if m == nil {
		return 0, 0, 0, false
	}
	vals := [3]float64{}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(dimValue(m[i+1]), 64)
		if err != nil || v <= 0 {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	unit := m[4]
	cm := strings.HasPrefix(unit, "c")
	if unit == "" && vals[0] < 100 && vals[1] < 100 && vals[2] < 100 {
		cm = true
	}
	for i := range vals {
		if cm {
			vals[i] *= 10
		}
		vals[i] = math.Round(vals[i])
	}
	l, w, h = int(vals[0]), int(vals[1]), int(vals[2])
	if w > l {
		l, w = w, l
	}
	return l, w, h, l > 0 && w > 0 && h > 0
}

// dimValue turns one captured side into a ParseFloat input: thousands
// separators are dropped and a decimal comma becomes a point.
func dimValue(raw string) string {
	if thousandsRE.MatchString(raw) {
		return strings.NewReplacer(".", "", ",", "").Replace(raw)
	}
	return strings.Replace(raw, ",", ".", 1)
}

// parseQuantity accepts "500", "1.000", "1,000", "2 mil" and phrases holding
// exactly one number ("son 500 cajas").
func parseQuantity(text string) (int, bool) {
	s := intent.Normalize(text)
	if m := milRE.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 || n*1000 > MaxQuantity {
			return 0, false
		}
		return n * 1000, true
	}
	nums := quantityRE.FindAllString(s, -1)
	if len(nums) != 1 {
		return 0, false
	}
	digits := strings.NewReplacer(".", "", ",", "").Replace(nums[0])
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 || n > MaxQuantity {
		return 0, false
	}
	return n, true
}

// colorsOutOfRange reports whether text asks for a colour count the plant
// cannot print, such as "5 colores".
func colorsOutOfRange(text string) bool {
	m := colorsRE.FindStringSubmatch(intent.Normalize(text))
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	return err != nil || n > quote.MaxColors
}

// parsePrinting understands the "1 sin impresión / 2 con impresión" menu,
// yes/no words and an explicit colour count.
func parsePrinting(text string) (has bool, colors int, ok bool) {
	s := intent.Normalize(text)
	if m := colorsRE.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 || n > quote.MaxColors {
			return false, 0, false
		}
		return n > 0, n, true
	}
	switch menuChoice(s) {
	case 1:
		return false, 0, true
	case 2:
		return true, 1, true
	}
	s = strings.Trim(s, "!¡.?¿ ")
	switch s {
	case "no", "sin impresion", "sin imprimir", "lisa", "lisas", "liso", "lisos", "sin logo", "ninguna":
		return false, 0, true
	case "si", "con impresion", "impresa", "impresas", "con logo", "un color", "una tinta":
		return true, 1, true
	}
	return false, 0, false
}

// menuChoice returns the option number in replies like "2", "2)", "opción 2".
// It returns 0 when the text is not a bare menu pick.
func menuChoice(normalized string) int {
	m := menuRE.FindStringSubmatch(strings.TrimSpace(normalized))
	if m == nil {
		return 0
	}
	return int(m[1][0] - '0')
}

// parseName extracts a person's name, dropping lead-ins such as "me llamo".
func parseName(text string) (string, bool) {
	s := strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(s)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	s = strings.Trim(s, "!¡.,;")
	if !nameRE.MatchString(s) {
		return "", false
	}
	return titleCase(s), true
}

// companyInfo is what a company contact block may hold.
type companyInfo struct {
	Company string
	Name    string
	Email   string
}

// parseCompanyInfo reads a block such as
//
//	Empresa: Cartonera Sur SA
//	Nombre: Ana Pérez
//	ana@cartonera.com
//
// Labels are optional: unlabeled lines are company then contact name. A
// single line may be split on ";" or ",". The company name is required.
func parseCompanyInfo(text string) (companyInfo, bool) {
	var info companyInfo
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	if len(parts) <= 1 {
		parts = strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == ',' || r == '|' })
	}
	var unlabeled []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if e := emailRE.FindString(p); e != "" {
			if info.Email == "" {
				info.Email = strings.ToLower(e)
			}
			p = strings.Trim(strings.Replace(p, e, "", 1), ":=- \t")
			if p == "" || isEmailLabel(p) {
				continue
			}
		}
		if m := labelRE.FindStringSubmatch(p); m != nil {
			key := intent.Normalize(m[1])
			switch {
			case isCompanyLabel(key):
				info.Company = m[2]
				continue
			case isNameLabel(key):
				if n, ok := parseName(m[2]); ok {
					info.Name = n
				}
				continue
			case isEmailLabel(key):
				continue
			}
		}
		unlabeled = append(unlabeled, p)
	}
	for _, p := range unlabeled {
		switch {
		case info.Company == "":
			info.Company = p
		case info.Name == "":
			if n, ok := parseName(p); ok {
				info.Name = n
			}
		}
	}
	info.Company = strings.Join(strings.Fields(info.Company), " ")
	if len([]rune(info.Company)) < 2 || len(info.Company) > 160 {
		return companyInfo{}, false
	}
	return info, true
}

func isCompanyLabel(k string) bool {
	switch k {
	case "empresa", "razon social", "compania", "company", "negocio", "firma":
		return true
	}
	return false
}

func isNameLabel(k string) bool {
	switch k {
	case "nombre", "contacto", "responsable", "name", "nombre y apellido":
		return true
	}
	return false
}

func isEmailLabel(k string) bool {
	switch intent.Normalize(k) {
	case "email", "mail", "correo", "e-mail", "correo electronico":
		return true
	}
	return false
}

func titleCase(s string) string {
	return cases.Title(language.Spanish).String(strings.ToLower(s))
}
