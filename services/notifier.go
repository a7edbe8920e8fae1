package services

import (
	"bytes"
	"context"
	"html/template"
	"log"
	"time"

	"vparking/metrics"
	"vparking/models"
)

// Mailer 寄送 HTML 郵件
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

const (
	dailyReminderSubject = "Daily Parking Reminder"
	monthlyReportSubject = "Your Monthly Parking Report"
)

var dailyReminderTmpl = template.Must(template.New("daily").Parse(`<div style="font-family:Arial; padding:20px;">
<h2>Daily Reminder</h2>
<p>Hi <b>{{.Username}}</b>,</p>
<p>You have not booked any parking today.</p>
<p>Please book a parking spot if needed.</p>
<p>Vehicle Parking App</p>
</div>`))

var monthlyReportTmpl = template.Must(template.New("monthly").Parse(`<h2>Monthly Parking Report</h2>
<p>Hello <b>{{.Username}}</b>,</p>
<h3>Summary for {{.Period}}:</h3>
<ul>
<li><b>Total Bookings:</b> {{.Bookings}}</li>
<li><b>Most Used Parking Lot:</b> {{.MostUsedLot}}</li>
<li><b>Total Amount Spent:</b> {{printf "%.2f" .TotalCost}}</li>
</ul>
<p>Thanks for using the app!</p>`))

// MonthlySummary 單一使用者的月報內容
type MonthlySummary struct {
	Username    string
	Period      string
	Bookings    int
	TotalCost   float64
	MostUsedLot string
}

// Notifier 排程寄送提醒與月報；寄送失敗只記錄，不回傳給呼叫端
type Notifier struct {
	users  *UserDirectory
	ledger *ReservationLedger
	mailer Mailer
}

func NewNotifier(users *UserDirectory, ledger *ReservationLedger, mailer Mailer) *Notifier {
	return &Notifier{users: users, ledger: ledger, mailer: mailer}
}

// SendDailyReminders 提醒當天尚未預約的使用者，回傳成功寄出的數量
func (n *Notifier) SendDailyReminders(ctx context.Context, now time.Time) (int, error) {
	users, err := n.users.List(ctx, true)
	if err != nil {
		return 0, err
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sent := 0
	for _, u := range users {
		reservations, err := n.ledger.ListForUserSince(ctx, u.ID, dayStart)
		if err != nil {
			log.Printf("Failed to load today's reservations for user %d: %v", u.ID, err)
			continue
		}
		if len(reservations) > 0 {
			continue
		}

		var body bytes.Buffer
		if err := dailyReminderTmpl.Execute(&body, u); err != nil {
			log.Printf("Failed to render daily reminder for user %d: %v", u.ID, err)
			continue
		}
		if n.send(u.Email, dailyReminderSubject, body.String(), "daily_reminder") {
			sent++
		}
	}

	log.Printf("Daily reminders sent: %d/%d users", sent, len(users))
	return sent, nil
}

// SendMonthlyReports 寄送當月至今的預約次數、總金額與最常使用的停車場
func (n *Notifier) SendMonthlyReports(ctx context.Context, now time.Time) (int, error) {
	users, err := n.users.List(ctx, true)
	if err != nil {
		return 0, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	sent := 0
	for _, u := range users {
		reservations, err := n.ledger.ListForUserSince(ctx, u.ID, monthStart)
		if err != nil {
			log.Printf("Failed to load monthly reservations for user %d: %v", u.ID, err)
			continue
		}

		summary := SummarizeMonth(u, reservations, now)
		var body bytes.Buffer
		if err := monthlyReportTmpl.Execute(&body, summary); err != nil {
			log.Printf("Failed to render monthly report for user %d: %v", u.ID, err)
			continue
		}
		if n.send(u.Email, monthlyReportSubject, body.String(), "monthly_report") {
			sent++
		}
	}

	log.Printf("Monthly reports sent: %d/%d users", sent, len(users))
	return sent, nil
}

// SummarizeMonth 同次數時取先達到該次數的停車場；沒有預約時為 "None"
func SummarizeMonth(user models.User, reservations []models.Reservation, now time.Time) MonthlySummary {
	summary := MonthlySummary{
		Username:    user.Username,
		Period:      now.Format("January 2006"),
		Bookings:    len(reservations),
		MostUsedLot: "None",
	}

	counts := make(map[string]int)
	best := 0
	for _, r := range reservations {
		summary.TotalCost += r.CurrentCost()
		if r.Spot == nil || r.Spot.Lot == nil {
			continue
		}
		name := r.Spot.Lot.Name
		counts[name]++
		if counts[name] > best {
			best = counts[name]
			summary.MostUsedLot = name
		}
	}
	summary.TotalCost = roundCents(summary.TotalCost)
	return summary
}

func (n *Notifier) send(to, subject, body, kind string) bool {
	if err := n.mailer.Send(to, subject, body); err != nil {
		log.Printf("Failed to send %s to %s: %v", kind, to, err)
		metrics.EmailsSent.WithLabelValues(kind, "failure").Inc()
		return false
	}
	metrics.EmailsSent.WithLabelValues(kind, "success").Inc()
	return true
}
