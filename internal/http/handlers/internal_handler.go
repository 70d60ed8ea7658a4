// Internal staff HTTP handlers.
//
// These endpoints sit behind the internal token guard:
//   - POST /internal/quotes          web quoting form (assisted policy)
//   - GET  /internal/stats/callers   request counts by caller class
//   - POST /internal/pricing         publish a new pricing version
//   - DELETE /internal/api-keys/{hash}  revoke an API key
//
// The form posts one value per box row in parallel arrays, so row i is
// (length[i], width[i], height[i], quantity[i], printing_colors[i]).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/http/middleware"
	"github.com/tbourn/boxquote/internal/quote"
	"github.com/tbourn/boxquote/internal/repo"
	"github.com/tbourn/boxquote/internal/services"
	"github.com/tbourn/boxquote/internal/sysutil"
	"github.com/tbourn/boxquote/internal/utils"
)

// CallerStatsResponse reports public API usage by caller class.
type CallerStatsResponse struct {
	Since  time.Time          `json:"since"`
	Hours  int                `json:"hours" example:"24"`
	Counts []repo.CallerCount `json:"counts"`
}

// formBoxes reads the parallel box arrays. Structural problems (mismatched
// lengths, non-numeric cells) are returned as messages; range checks are
// left to the quote engine so every channel reports them the same way.
func formBoxes(c *gin.Context) ([]quote.BoxSpec, []string) {
	lengths, badL := utils.FormInts(c.PostFormArray("length"), 0)
	widths, badW := utils.FormInts(c.PostFormArray("width"), 0)
	heights, badH := utils.FormInts(c.PostFormArray("height"), 0)
	qtys, badQ := utils.FormInts(c.PostFormArray("quantity"), 0)
	colors, badC := utils.FormInts(c.PostFormArray("printing_colors"), 0)
	printing := c.PostFormArray("has_printing")

	var problems []string
	for _, col := range []struct {
		field string
		bad   []int
	}{
		{"length", badL}, {"width", badW}, {"height", badH}, {"quantity", badQ}, {"printing_colors", badC},
	} {
		for _, i := range col.bad {
			problems = append(problems, fmt.Sprintf("boxes[%d].%s: must be a whole number", i, col.field))
		}
	}

	n := len(lengths)
	if len(widths) != n || len(heights) != n || len(qtys) != n {
		problems = append(problems, "boxes: length, width, height and quantity must have one value per row")
	}
	if len(colors) > n || len(printing) > n {
		problems = append(problems, "boxes: more printing values than rows")
	}
	if len(problems) > 0 {
		return nil, problems
	}

	boxes := make([]quote.BoxSpec, n)
	for i := range boxes {
		b := quote.BoxSpec{Length: lengths[i], Width: widths[i], Height: heights[i], Quantity: qtys[i]}
		if i < len(colors) {
			b.PrintingColors = colors[i]
		}
		if i < len(printing) && sysutil.IsTruthy(printing[i]) {
			b.HasPrinting = true
			if b.PrintingColors == 0 {
				b.PrintingColors = 1
			}
		}
		if b.PrintingColors > 0 {
			b.HasPrinting = true
		}
		boxes[i] = b
	}
	return boxes, nil
}

// PostInternalQuote godoc
// @ID          createInternalQuote
// @Summary     Quote from the internal web form
// @Description Prices boxes for staff. Quotes under the absolute minimum are
// @Description priced at the below-minimum rate and flagged for review, and
// @Description fallback pricing is used when live pricing is unavailable.
// @Tags        Internal
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       X-Internal-Token  header    string    true   "Internal access token"
// @Param       length            formData  []int     true   "Inner length per row (mm)"   collectionFormat(multi)
// @Param       width             formData  []int     true   "Inner width per row (mm)"    collectionFormat(multi)
// @Param       height            formData  []int     true   "Inner height per row (mm)"   collectionFormat(multi)
// @Param       quantity          formData  []int     true   "Units per row"               collectionFormat(multi)
// @Param       printing_colors   formData  []int     false  "Printing colors per row"     collectionFormat(multi)
// @Param       has_printing      formData  []string  false  "Printing flag per row (si/no)" collectionFormat(multi)
// @Param       name              formData  string    false  "Contact name"
// @Param       email             formData  string    false  "Contact email"
// @Param       phone             formData  string    false  "Contact phone"
// @Param       company           formData  string    false  "Company"
// @Param       notes             formData  string    false  "Notes"
// @Success     200  {object}  handlers.QuoteEnvelope
// @Failure     400  {object}  handlers.QuoteEnvelope
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.QuoteEnvelope
// @Router      /internal/quotes [post]
func (h *Handlers) PostInternalQuote(c *gin.Context) {
	boxes, problems := formBoxes(c)
	if len(problems) > 0 {
		failQuote(c, http.StatusBadRequest, ErrCodeValidationFailed, quote.ErrValidationFailed.Error(), problems)
		return
	}

	res, err := h.quotes.Create(c.Request.Context(), services.QuoteRequest{
		Channel: domain.ChannelWeb,
		Boxes:   boxes,
		Contact: &services.Contact{
			Name:    c.PostForm("name"),
			Email:   c.PostForm("email"),
			Phone:   c.PostForm("phone"),
			Company: c.PostForm("company"),
			Notes:   c.PostForm("notes"),
		},
		Origin: "internal-form",
	}, quote.PolicyAssisted)
	if err != nil {
		o := classifyQuoteError(err)
		if o.status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		failQuote(c, o.status, o.code, o.msg, o.details)
		return
	}
	ok(c, http.StatusOK, QuoteEnvelope{Success: true, Quote: &res.Quote, Warnings: res.Warnings})
}

// GetCallerStats godoc
// @ID          callerStats
// @Summary     Public API usage by caller class
// @Tags        Internal
// @Produce     json
// @Param       X-Internal-Token  header  string  true   "Internal access token"
// @Param       hours             query   int     false  "Look-back window in hours"  minimum(1) maximum(720) default(24)
// @Success     200  {object}  handlers.CallerStatsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /internal/stats/callers [get]
func (h *Handlers) GetCallerStats(c *gin.Context) {
	if h.telemetry == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "telemetry disabled")
		return
	}
	hours := utils.Clamp(utils.AtoiDefault(strings.TrimSpace(c.Query("hours")), 24), 1, 720)
	since := h.now().UTC().Add(-time.Duration(hours) * time.Hour)

	counts, err := h.telemetry.CallerStats(c.Request.Context(), since)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	if counts == nil {
		counts = []repo.CallerCount{}
	}
	ok(c, http.StatusOK, CallerStatsResponse{Since: since, Hours: hours, Counts: counts})
}

// PostPricing godoc
// @ID          publishPricing
// @Summary     Publish pricing
// @Description Stores the parameters as the next pricing version and makes it
// @Description the only active one. Version and activation fields are
// @Description assigned by the server.
// @Tags        Internal
// @Accept      json
// @Produce     json
// @Param       X-Internal-Token  header  string                true  "Internal access token"
// @Param       body              body    domain.PricingConfig  true  "Pricing parameters"
// @Success     201  {object}  handlers.PricingResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /internal/pricing [post]
func (h *Handlers) PostPricing(c *gin.Context) {
	var cfg domain.PricingConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	published, err := h.pricing.Publish(c.Request.Context(), cfg)
	if err != nil {
		if errors.Is(err, quote.ErrInvalidConfig) {
			fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	middleware.LoggerFrom(c).Info().Int("version", published.Version).Msg("pricing published")
	ok(c, http.StatusCreated, PricingResponse{Success: true, Pricing: *published})
}

// DeleteAPIKey godoc
// @ID          revokeAPIKey
// @Summary     Revoke an API key
// @Description Deactivates the key with the given SHA-256 hex hash. The quota
// @Description stops honouring it on the next request.
// @Tags        Internal
// @Param       X-Internal-Token  header  string  true  "Internal access token"
// @Param       hash              path    string  true  "SHA-256 hex of the key"
// @Success     204
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /internal/api-keys/{hash} [delete]
func (h *Handlers) DeleteAPIKey(c *gin.Context) {
	if h.keys == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "key management disabled")
		return
	}
	if err := h.keys.Revoke(c.Request.Context(), c.Param("hash")); err != nil {
		if errors.Is(err, services.ErrAPIKeyNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "api key not found")
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	noContent(c)
}
