package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

var (
	spaceRun       = regexp.MustCompile(`\s+`)
	dayNames       = regexp.MustCompile(`(?i)(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday),?\s*`)
	ordinalSuffix  = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)
	listNumber     = regexp.MustCompile(`^\s*\d+\)\s*`)
	advocateSplit  = regexp.MustCompile(`(?i)\s*Advocate\s*[-:]\s*`)
	nameSeparators = regexp.MustCompile(`\s+(?:and|AND|And|&)\s+`)
	judgePrefix    = regexp.MustCompile(`^\d+\s*-\s*`)
	nextListItem   = regexp.MustCompile(`\s+\d+\)\s*`)
)

// Page is what one case-status page yields.
type Page struct {
	Details *database.CaseDetails
	Orders  []database.DiscoveredOrder
}

// Parser reads eCourts case-status pages.
type Parser struct {
	logger *logger.Logger
}

func NewParser(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.NewNop()
	}
	return &Parser{logger: log}
}

// Parse reads case details and the order listing from page HTML. pageURL
// resolves relative order links.
func (p *Parser) Parse(html, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	details := p.ParseCaseDetails(doc)
	orders := p.ParseOrders(doc, pageURL)

	if *details == (database.CaseDetails{}) && len(orders) == 0 {
		return nil, fmt.Errorf("no case details found on page")
	}
	return &Page{Details: details, Orders: orders}, nil
}

// ParseCaseDetails reads every two-column label/value row on the page and
// the party tables.
func (p *Parser) ParseCaseDetails(doc *goquery.Document) *database.CaseDetails {
	details := &database.CaseDetails{}

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		// Rows may hold two label/value pairs side by side.
		for i := 0; i+1 < cells.Length(); i += 2 {
			label := strings.ToLower(cleanText(cells.Eq(i).Text()))
			value := cleanText(cells.Eq(i + 1).Text())
			if label == "" || value == "" {
				continue
			}
			p.applyDetail(details, label, value)
		}
	})

	petitioner, petitionerAdv := p.parseParty(doc, "table.Petitioner_Advocate_table, table#petitioner_table, div.petitioner")
	respondent, respondentAdv := p.parseParty(doc, "table.Respondent_Advocate_table, table#respondent_table, div.respondent")
	if petitioner != "" {
		details.Petitioner = petitioner
		details.PetitionerAdv = petitionerAdv
	}
	if respondent != "" {
		details.Respondent = respondent
		details.RespondentAdv = respondentAdv
	}

	return details
}

func (p *Parser) applyDetail(details *database.CaseDetails, label, value string) {
	switch {
	case strings.Contains(label, "case type"):
		details.CaseType = value
	case strings.Contains(label, "filing number"):
		details.FilingNumber = value
	case strings.Contains(label, "filing date") || strings.Contains(label, "date of filing"):
		details.FilingDate = p.datePtr(value)
	case strings.Contains(label, "registration number") || strings.Contains(label, "registration no"):
		details.RegistrationNo = value
	case strings.Contains(label, "first hearing"):
		details.FirstHearing = p.datePtr(value)
	case strings.Contains(label, "next hearing") || strings.Contains(label, "next date"):
		details.NextHearingDate = p.datePtr(value)
	case strings.Contains(label, "stage") || strings.Contains(label, "case status"):
		details.Stage = value
	case strings.Contains(label, "judge") || strings.Contains(label, "coram"):
		details.JudgeName = judgePrefix.ReplaceAllString(value, "")
	case strings.Contains(label, "court") && !strings.Contains(label, "court number"):
		details.CourtName = value
	}
}

// parseParty returns the first party name and advocate from a party block
// such as "1) RAM KUMAR Advocate- SH. A. SINGH".
func (p *Parser) parseParty(doc *goquery.Document, selector string) (name, advocate string) {
	block := doc.Find(selector).First()
	if block.Length() == 0 {
		return "", ""
	}

	text := cleanText(block.Text())
	text = listNumber.ReplaceAllString(text, "")
	if parts := advocateSplit.Split(text, 2); len(parts) == 2 {
		text = parts[0]
		advocate = strings.TrimSpace(parts[1])
		if idx := nextListItem.FindStringIndex(advocate); idx != nil {
			advocate = strings.TrimSpace(advocate[:idx[0]])
		}
	}
	if idx := nextListItem.FindStringIndex(text); idx != nil {
		text = text[:idx[0]]
	}

	names := nameSeparators.Split(strings.TrimSpace(text), -1)
	if len(names) > 0 {
		name = strings.TrimSpace(names[0])
	}
	return name, advocate
}

// ParseOrders reads the order tables. A row is an order when it has a
// parseable date; the order number comes from the first integer cell or,
// failing that, the row position.
func (p *Parser) ParseOrders(doc *goquery.Document, pageURL string) []database.DiscoveredOrder {
	var orders []database.DiscoveredOrder

	doc.Find("table.order_table, table#order_table, table.order-table").Each(func(_ int, table *goquery.Selection) {
		position := 0
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			position++

			order := database.DiscoveredOrder{}
			number := 0
			var descriptions []string
			cells.Each(func(_ int, cell *goquery.Selection) {
				text := cleanText(cell.Text())
				if number == 0 {
					if n, err := strconv.Atoi(text); err == nil && n > 0 {
						number = n
						return
					}
				}
				if order.OrderDate.IsZero() {
					if d, err := p.parseDate(text); err == nil {
						order.OrderDate = database.Day(d)
						return
					}
				}
				if href, ok := cell.Find("a[href]").Attr("href"); ok && order.SourceURL == "" {
					order.SourceURL = makeAbsoluteURL(pageURL, href)
				}
				if text != "" {
					descriptions = append(descriptions, text)
				}
			})

			if order.OrderDate.IsZero() {
				position--
				return
			}
			if number == 0 {
				number = position
			}
			order.OrderNumber = number
			order.Description = strings.Join(descriptions, " ")
			orders = append(orders, order)
		})
	})

	return orders
}

// ParseError returns the error message a results page shows, or "".
func (p *Parser) ParseError(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, selector := range []string{".error-message", ".alert-danger", "#errorMsg", "#msg-danger", "div.error", "span.error"} {
		if text := cleanText(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}

	body := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range []string{
		"This Case Code does not exists",
		"Record not found",
		"No records found",
		"Invalid case number",
		"Case not found",
		"Invalid Captcha",
		"Wrong Captcha",
	} {
		if strings.Contains(body, strings.ToLower(phrase)) {
			return phrase
		}
	}
	return ""
}

func (p *Parser) datePtr(value string) *time.Time {
	d, err := p.parseDate(value)
	if err != nil {
		p.logger.Debug("Unparseable date", "value", value)
		return nil
	}
	d = database.Day(d)
	return &d
}

// parseDate parses the date formats used by Indian court systems.
func (p *Parser) parseDate(dateStr string) (time.Time, error) {
	dateStr = cleanText(dateStr)
	dateStr = ordinalSuffix.ReplaceAllString(dateStr, "$1")

	formats := []string{
		"02-01-2006",
		"02/01/2006",
		"02.01.2006",
		"2-1-2006",
		"2/1/2006",
		"02-Jan-2006",
		"02-January-2006",
		"02 Jan 2006",
		"2 January 2006",
		"02 January 2006",
		"January 2 2006",
		"2006-01-02",
		"Jan 02, 2006",
		"January 02, 2006",
	}

	for _, candidate := range []string{dateStr, dayNames.ReplaceAllString(dateStr, "")} {
		for _, format := range formats {
			if date, err := time.Parse(format, candidate); err == nil {
				return date, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// makeAbsoluteURL resolves a link against the page it was found on.
func makeAbsoluteURL(pageURL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return href
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
