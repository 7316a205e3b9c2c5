package monitor

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/notify"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

var digestTemplate = template.Must(template.New("digest").Parse(`<html><body>
<h2>New court orders for {{.Day}}</h2>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>CNR</th><th>Parties</th><th>Order</th><th>Summary</th><th>Next hearing</th></tr>
{{range .Entries}}<tr>
<td>{{.CNR}}</td>
<td>{{.Parties}}</td>
<td>{{.Order}}</td>
<td>{{.Summary}}</td>
<td>{{.NextHearing}}</td>
</tr>
{{end}}</table>
</body></html>`))

type digestEntry struct {
	CNR         string
	Parties     string
	Order       string
	Summary     string
	NextHearing string
}

// Digest sends at most one email per calendar day listing the windows that
// closed with a found order that day.
type Digest struct {
	store     *repository.Store
	mailer    notify.Mailer
	recipient string
	now       func() time.Time
	loc       *time.Location
	logger    *logger.Logger
}

func NewDigest(store *repository.Store, mailer notify.Mailer, recipient string, now func() time.Time, loc *time.Location, log *logger.Logger) *Digest {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Digest{store: store, mailer: mailer, recipient: recipient, now: now, loc: loc, logger: log}
}

// SendDaily sends today's digest if one is due. Delivery is attempted once
// per day; a failed delivery is recorded and not retried.
func (d *Digest) SendDaily(ctx context.Context) (bool, error) {
	if d.mailer == nil || d.recipient == "" {
		return false, nil
	}

	today := database.Day(d.now().In(d.loc))
	day := today.Format("2006-01-02")

	sent, err := d.store.Windows.NotificationSent(day)
	if err != nil || sent {
		return false, err
	}

	found, err := d.store.Windows.ClosedFoundOn(today, d.loc)
	if err != nil || len(found) == 0 {
		return false, err
	}

	html, err := d.render(day, found)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "monitor.SendDaily", err)
	}

	subject := fmt.Sprintf("Court orders found: %d case(s) on %s", len(found), day)
	sendErr := d.mailer.Send(ctx, d.recipient, subject, html)

	entry := &database.NotificationLog{Day: day, Recipient: d.recipient, Delivered: sendErr == nil}
	if sendErr != nil {
		entry.Error = apperr.Sanitize(sendErr)
		d.logger.Error("Digest delivery failed", "day", day, "error", sendErr)
	}
	if err := d.store.Windows.RecordNotification(entry); err != nil {
		if apperr.IsKind(err, apperr.KindDuplicateConflict) {
			return false, nil
		}
		return false, err
	}
	if sendErr != nil {
		return false, sendErr
	}

	d.logger.Info("Digest sent", "day", day, "cases", len(found))
	return true, nil
}

func (d *Digest) render(day string, windows []database.MonitoringWindow) (string, error) {
	entries := make([]digestEntry, 0, len(windows))
	for _, w := range windows {
		entry := digestEntry{Order: "-", Summary: "-", NextHearing: "-"}

		c, err := d.store.Cases.Get(w.CaseID)
		if err != nil {
			d.logger.Warn("Digest case lookup failed", "case_id", w.CaseID, "error", err)
			continue
		}
		entry.CNR = c.CNR
		entry.Parties = fmt.Sprintf("%s vs %s", c.Petitioner, c.Respondent)
		if c.NextHearingDate != nil {
			entry.NextHearing = c.NextHearingDate.Format("02-01-2006")
		}

		if w.FoundOrderID != nil {
			if o, err := d.store.Orders.Get(*w.FoundOrderID); err == nil {
				entry.Order = fmt.Sprintf("#%d of %s", o.OrderNumber, o.OrderDate.Format("02-01-2006"))
			}
			if s, err := d.store.Artifacts.GetSummary(*w.FoundOrderID); err == nil && s.Summary != "" {
				entry.Summary = s.Summary
			}
		}
		entries = append(entries, entry)
	}

	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Day     string
		Entries []digestEntry
	}{day, entries})
	return buf.String(), err
}
