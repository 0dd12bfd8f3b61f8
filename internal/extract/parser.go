package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
	"github.com/alpinisme/formation-sync/internal/reference"
)

const (
	listingSelector   = "article.formation"
	infoSelector      = "ul.infos li"
	documentsSelector = ".documents a[href]"

	labelReference   = "Référence"
	labelDates       = "Dates"
	labelLocation    = "Lieu"
	labelDiscipline  = "Discipline"
	labelLodging     = "Hébergement"
	labelCapacity    = "Capacité"
	labelSeats       = "Places restantes"
	labelPrice       = "Tarif"
	labelOrganizer   = "Organisateur"
	labelResponsible = "Responsable"
)

// Session dates are published as dd/mm/yyyy; the layout also accepts
// single-digit day and month.
const dateLayout = "2/1/2006"

// Parser turns one catalog document into course records.
type Parser struct {
	origin string
	logger *zap.Logger
}

// NewParser builds a Parser. Document links are resolved against the
// origin of sourceURL.
func NewParser(sourceURL string, logger *zap.Logger) (*Parser, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source url %q has no origin", sourceURL)
	}
	return &Parser{
		origin: u.Scheme + "://" + u.Host,
		logger: logger,
	}, nil
}

// Parse extracts every course listing from the document. A malformed
// listing is logged and skipped; it never aborts the batch.
func (p *Parser) Parse(html []byte) ([]course.Course, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var records []course.Course
	doc.Find(listingSelector).Each(func(i int, block *goquery.Selection) {
		rec, err := p.parseListing(block)
		if err != nil {
			p.logger.Warn("skipping malformed listing",
				zap.Int("index", i),
				zap.Error(err),
			)
			return
		}
		records = append(records, rec)
	})
	return records, nil
}

func (p *Parser) parseListing(block *goquery.Selection) (course.Course, error) {
	raw := NormalizeWhitespace(fieldValue(block, labelReference))
	if raw == "" {
		return course.Course{}, fmt.Errorf("listing has no reference")
	}
	// The reference may be wrapped in label noise; resolve the trailing
	// reference token and reject listings without a recognizable one.
	ref, ok := reference.FromIdentifier(raw)
	if !ok {
		return course.Course{}, fmt.Errorf("unrecognized reference %q", raw)
	}
	title := NormalizeWhitespace(block.Find("h2").First().Text())
	if title == "" {
		return course.Course{}, fmt.Errorf("listing %s has no title", ref)
	}

	rec := course.Course{
		Reference:      ref,
		Title:          title,
		Dates:          p.parseDates(ref, fieldValue(block, labelDates)),
		Location:       NormalizeWhitespace(fieldValue(block, labelLocation)),
		Discipline:     NormalizeWhitespace(fieldValue(block, labelDiscipline)),
		Lodging:        NormalizeWhitespace(fieldValue(block, labelLodging)),
		Capacity:       ExtractPrice(fieldValue(block, labelCapacity)),
		SeatsRemaining: ExtractSeats(fieldValue(block, labelSeats)),
		Price:          ExtractPrice(fieldValue(block, labelPrice)),
		Organizer:      CollapseDuplicateText(fieldValue(block, labelOrganizer)),
		Responsible:    CollapseDuplicateText(fieldValue(block, labelResponsible)),
		Documents:      p.parseDocuments(block),
		Status:         "active",
	}

	if email, ok := DecodeObfuscatedEmail(block.Find("script").Text()); ok {
		rec.ContactEmail = email
	}
	return rec, nil
}

func (p *Parser) parseDates(ref, text string) []time.Time {
	tokens := ExtractDates(text)
	dates := make([]time.Time, 0, len(tokens))
	for _, tok := range tokens {
		d, err := time.Parse(dateLayout, tok)
		if err != nil {
			p.logger.Warn("unparseable session date",
				zap.String("reference", ref),
				zap.String("token", tok),
			)
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func (p *Parser) parseDocuments(block *goquery.Selection) []course.Document {
	var docs []course.Document
	block.Find(documentsSelector).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		label := NormalizeWhitespace(link.Text())
		docs = append(docs, course.Document{
			Type:  documentType(href, label),
			Label: label,
			URL:   p.absoluteURL(href),
		})
	})
	return docs
}

func documentType(href, label string) string {
	if strings.Contains(strings.ToLower(href), "cursus") ||
		strings.Contains(strings.ToLower(label), "cursus") {
		return "cursus"
	}
	return "inscription"
}

func (p *Parser) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return p.origin + href
}

// fieldValue locates the info line starting with the given label and
// returns the text after it, with the label and separator trimmed.
func fieldValue(block *goquery.Selection, label string) string {
	var value string
	block.Find(infoSelector).EachWithBreak(func(_ int, line *goquery.Selection) bool {
		text := NormalizeWhitespace(line.Text())
		if !strings.HasPrefix(text, label) {
			return true
		}
		value = strings.TrimSpace(strings.TrimPrefix(text, label))
		value = strings.TrimSpace(strings.TrimPrefix(value, ":"))
		return false
	})
	return value
}
