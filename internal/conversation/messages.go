package conversation

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/quote"
)

// Fixed replies. Every outbound text of the dialog lives here.
const (
	msgWelcome = "¡Hola! 👋 Soy el asistente de cotizaciones de cajas de cartón corrugado.\n\n" +
		"¿La compra es para vos o para una empresa?\n" +
		"1️⃣ Particular\n" +
		"2️⃣ Empresa"
	msgAskClientType = "Respondé *1* si sos particular o *2* si comprás para una empresa."
	msgAskName       = "¡Genial! ¿Cómo es tu nombre?"
	msgRepromptName  = "No pude leer tu nombre. Escribilo sin números, por ejemplo: *Ana Pérez*."
	msgAskCompany    = "Perfecto. Pasame los datos de la empresa, uno por línea:\n" +
		"Empresa: ...\nNombre: ...\nEmail: ..."
	msgRepromptCompany = "Necesito al menos el nombre de la empresa. Por ejemplo:\n" +
		"Empresa: Cartonera Sur SA\nNombre: Ana Pérez\nEmail: ana@cartonerasur.com"
	msgAskDimensions = "Indicame las medidas internas de la caja en milímetros: *largo x ancho x alto*.\n" +
		"Ejemplo: 400x300x200"
	msgRepromptDimensions = "No entendí las medidas. Escribilas así: *400x300x200* (mm) o *40x30x20 cm*."
	msgAskQuantity        = "¿Cuántas cajas necesitás?"
	msgRepromptQuantity   = "Decime la cantidad con números, por ejemplo *500* o *1.000*."
	msgAskPrinting        = "¿Las cajas llevan impresión?\n1️⃣ Sin impresión\n2️⃣ Con impresión\n" +
		"También podés indicar la cantidad de colores, por ejemplo *2 colores* (máximo 4)."
	msgRepromptPrinting = "Respondé *1* sin impresión, *2* con impresión o *N colores* (hasta 4)."
	msgColorsOutOfRange = "Podemos imprimir de 1 a 4 colores. Indicá cuántos necesitás, por ejemplo *2 colores*, " +
		"o respondé *1* si van sin impresión."
	msgQuotedOptions    = "¿Cómo seguimos?\n1️⃣ Confirmar pedido\n2️⃣ Modificar medidas\n3️⃣ Hablar con un asesor"
	msgRepromptQuoted   = "Elegí una opción: *1* confirmar, *2* modificar o *3* hablar con un asesor."
	msgConfirmed        = "¡Gracias! 🙌 Registramos tu pedido. Un asesor te va a contactar para coordinar el pago y la entrega."
	msgModify           = "Dale, cotizamos otra caja. " + msgAskDimensions
	msgAdvisor          = "Listo, un asesor va a continuar la conversación por este medio en breve."
	msgFarewell         = "¡Gracias por escribirnos! Cuando quieras cotizar de nuevo, mandanos un mensaje. 👋"
	msgCancelled        = "Cancelamos la cotización. Escribí *hola* cuando quieras empezar de nuevo."
	msgUnsupportedMedia = "Por ahora solo puedo leer mensajes de texto. ¿Me lo escribís?"
	msgQuoteUnavailable = "No pude calcular la cotización en este momento. Probá de nuevo en unos minutos " +
		"o escribí *asesor* para que te atienda una persona."
	msgBelowMinimum = "El pedido queda por debajo del mínimo de producción. " +
		"Podés indicar otra cantidad o escribir *asesor* para que lo revise una persona."
)

var printer = message.NewPrinter(language.Spanish)

// formatMoney renders an amount the way Argentine customers read it:
// "$ 253.750,00".
func formatMoney(v float64) string {
	return printer.Sprintf("$ %.2f", v)
}

// formatArea renders square metres with two decimals: "362,50 m²".
func formatArea(v float64) string {
	return printer.Sprintf("%.2f m²", v)
}

func formatInvalid(err error) string {
	var b strings.Builder
	b.WriteString("Revisá las medidas:\n")
	var verr *quote.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			b.WriteString("• ")
			b.WriteString(fieldLabel(f.Field))
			b.WriteString(": ")
			b.WriteString(fieldHint(f.Field))
			b.WriteString("\n")
		}
	}
	b.WriteString(msgAskDimensions)
	return b.String()
}

func fieldLabel(field string) string {
	switch {
	case strings.HasSuffix(field, ".length"):
		return "largo"
	case strings.HasSuffix(field, ".width"):
		return "ancho"
	case strings.HasSuffix(field, ".height"):
		return "alto"
	case strings.HasSuffix(field, ".quantity"):
		return "cantidad"
	case strings.HasSuffix(field, ".printing_colors"):
		return "colores"
	}
	return field
}

func fieldHint(field string) string {
	switch {
	case strings.HasSuffix(field, ".length"), strings.HasSuffix(field, ".width"):
		return fmt.Sprintf("entre %d y %d mm", quote.MinSide, quote.MaxSide)
	case strings.HasSuffix(field, ".height"):
		return fmt.Sprintf("entre %d y %d mm", quote.MinHeight, quote.MaxHeight)
	case strings.HasSuffix(field, ".quantity"):
		return "al menos 1"
	case strings.HasSuffix(field, ".printing_colors"):
		return fmt.Sprintf("entre 0 y %d", quote.MaxColors)
	}
	return "valor inválido"
}

func greetingFor(s *domain.ConversationSession) string {
	who := s.ClientName
	if who == "" {
		who = s.CompanyName
	}
	var b strings.Builder
	if who != "" {
		fmt.Fprintf(&b, "¡Hola de nuevo, %s! 👋\n", who)
	} else {
		b.WriteString("¡Hola de nuevo! 👋\n")
	}
	if s.HasLastQuote() {
		fmt.Fprintf(&b, "Tu última cotización fue de %s por %s.\n",
			formatArea(s.LastQuoteArea), formatMoney(s.LastQuoteSubtotal))
	}
	b.WriteString("\n")
	b.WriteString(msgAskDimensions)
	return b.String()
}

func formatQuote(r *quote.Result) string {
	q := r.Quote
	var b strings.Builder
	b.WriteString("📦 *Tu cotización*\n")
	for _, l := range q.Lines {
		fmt.Fprintf(&b, "Caja %dx%dx%d mm × %s u.\n", l.Length, l.Width, l.Height, printer.Sprintf("%d", l.Quantity))
		if l.HasPrinting {
			fmt.Fprintf(&b, "Impresión: %d %s\n", l.PrintingColors, plural(l.PrintingColors, "color", "colores"))
		} else {
			b.WriteString("Sin impresión\n")
		}
		fmt.Fprintf(&b, "Precio unitario: %s\n", formatMoney(l.UnitPrice))
	}
	fmt.Fprintf(&b, "Superficie total: %s\n", formatArea(q.TotalArea))
	fmt.Fprintf(&b, "*Total: %s* + IVA\n", formatMoney(q.Subtotal))
	fmt.Fprintf(&b, "Producción estimada: %d días hábiles\n", q.EstimatedProductionDays)
	fmt.Fprintf(&b, "Válida hasta el %s\n", q.ValidUntil.Format("02/01/2006"))
	if q.FallbackPricing {
		b.WriteString("⚠️ Precios de referencia: un asesor confirmará el valor final.\n")
	}
	if q.RequiresReview {
		b.WriteString("⚠️ El pedido está por debajo del mínimo de producción y requiere revisión de un asesor.\n")
	} else if !q.MeetsMinimum {
		b.WriteString("ℹ️ Por debajo del mínimo por modelo se aplica un precio diferencial.\n")
	}
	b.WriteString("\n")
	b.WriteString(msgQuotedOptions)
	return b.String()
}

// quoteDocument is the plain-text attachment sent alongside a quote.
func quoteDocument(r *quote.Result, s *domain.ConversationSession) *Document {
	q := r.Quote
	var b strings.Builder
	fmt.Fprintf(&b, "COTIZACIÓN %s\n", shortID(q.ID))
	if s.CompanyName != "" {
		fmt.Fprintf(&b, "Empresa: %s\n", s.CompanyName)
	}
	if s.ClientName != "" {
		fmt.Fprintf(&b, "Cliente: %s\n", s.ClientName)
	}
	b.WriteString("\n")
	for i, l := range q.Lines {
		fmt.Fprintf(&b, "%d. %dx%dx%d mm  cant. %d  m²/u %.4f  $/m² %.2f  unit. %.2f  subtotal %.2f\n",
			i+1, l.Length, l.Width, l.Height, l.Quantity, l.AreaPerUnit, l.PricePerArea, l.UnitPrice, l.Subtotal)
	}
	fmt.Fprintf(&b, "\nSuperficie total: %.2f m²\nSubtotal: %.2f\nValidez: %s\n",
		q.TotalArea, q.Subtotal, q.ValidUntil.Format("2006-01-02"))
	return &Document{
		Filename:    "cotizacion-" + shortID(q.ID) + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Content:     []byte(b.String()),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
