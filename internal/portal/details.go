package portal

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
)

// Extractor scrapes booking details from the reservation page.
type Extractor struct {
	Log zerolog.Logger
}

func (e *Extractor) Extract(ctx context.Context, s browser.Session) booking.Details {
	pageURL, err := s.URL(ctx)
	if err != nil {
		e.Log.Warn().Err(err).Msg("read page url")
	}
	html, err := s.HTML(ctx)
	if err != nil {
		e.Log.Warn().Err(err).Msg("read page html")
		d := booking.NewDetails()
		if pageURL != "" {
			d.URL = pageURL
		}
		return d
	}
	return ParseDetails(html, pageURL)
}

// ParseDetails pulls what it can from a reservation page. Anything missing
// stays booking.Unknown.
func ParseDetails(html, pageURL string) booking.Details {
	d := booking.NewDetails()
	if pageURL != "" {
		d.URL = pageURL
		if ref := executionRef(pageURL); ref != "" {
			d.Reference = ref
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return d
	}

	// "Test on Tuesday 4 March 2025 at Wood Green (London)"
	if h := strings.TrimSpace(doc.Find("h3").First().Text()); h != "" {
		if i := strings.LastIndex(h, "at "); i >= 0 {
			d.Centre = strings.TrimSpace(h[i+3:])
		}
		if on := strings.Index(h, "on "); on >= 0 {
			rest := h[on+3:]
			if at := strings.Index(rest, " at "); at >= 0 {
				d.Date = strings.TrimSpace(rest[:at])
			}
		}
	}

	// "Tue 04 Mar 2025 10:04"
	if cell := strings.TrimSpace(doc.Find("td[headers='dateTime']").First().Text()); cell != "" {
		d.DateTime = strings.Join(strings.Fields(cell), " ")
		parts := strings.Fields(cell)
		if len(parts) >= 4 {
			d.Date = strings.Join(parts[1:4], " ")
		}
		if len(parts) > 4 {
			d.Time = parts[4]
		}
	}

	if cell := strings.TrimSpace(doc.Find("td.searchcriteria span.bold").First().Text()); cell != "" {
		d.Centre = strings.TrimSpace(strings.SplitN(cell, "\n", 2)[0])
	}

	if t := strings.TrimSpace(doc.Find("#minutesToTimeout").First().Text()); t != "" {
		d.Countdown = t + " minutes"
	}

	if id, ok := doc.Find("a[id*='releaseReservedSlot_']").First().Attr("id"); ok {
		if i := strings.LastIndex(id, "_"); i >= 0 && i < len(id)-1 {
			d.SlotID = id[i+1:]
		}
	}
	return d
}

func executionRef(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	if exec := u.Query().Get("execution"); exec != "" {
		return "EXEC-" + exec
	}
	return ""
}
