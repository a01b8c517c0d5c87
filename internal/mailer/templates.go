package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template задаёт имя шаблона письма.
type Template string

const (
	InvestmentConfirmation Template = "INVESTMENT_CONFIRMATION"
	DepositRejected        Template = "DEPOSIT_REJECTED"
	WithdrawalRequest      Template = "WITHDRAWAL_REQUEST"
	WithdrawalApproved     Template = "WITHDRAWAL_APPROVED"
	WithdrawalRejected     Template = "WITHDRAWAL_REJECTED"
	ProfitDistribution     Template = "PROFIT_DISTRIBUTION"
	CallScheduled          Template = "CALL_SCHEDULED"
	CallConfirmation       Template = "CALL_CONFIRMATION"
	CallCancelled          Template = "CALL_CANCELLED"
	SupportCallReminder    Template = "SUPPORT_CALL_REMINDER"
	SupportReply           Template = "SUPPORT_REPLY"
)

type emailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">{{template "content" .}}<p style="color:#666">Hivestin team</p></div>`

var templates = map[Template]emailTemplate{
	InvestmentConfirmation: mustTemplate("Investment confirmed", `
<h2>Your investment is active</h2>
<p>We confirmed your deposit of <strong>{{.Amount}} {{.Currency}}</strong> under the {{.PlanName}}.</p>
<p>Weekly return: {{.WeeklyRate}}%. Principal unlocks on {{.UnlockDate}}.</p>`),
	DepositRejected: mustTemplate("Deposit rejected", `
<h2>Deposit rejected</h2>
<p>Your deposit of {{.Amount}} {{.Currency}} (transaction {{.TransactionHash}}) could not be confirmed.</p>`),
	WithdrawalRequest: mustTemplate("Withdrawal request received", `
<h2>Withdrawal request received</h2>
<p>We received your request to withdraw <strong>{{.Amount}} USDT</strong> to {{.WalletAddress}}.</p>
<p>Reference: {{.Reference}}</p>`),
	WithdrawalApproved: mustTemplate("Withdrawal approved", `
<h2>Withdrawal approved</h2>
<p>Your withdrawal of <strong>{{.Amount}} USDT</strong> to {{.WalletAddress}} has been approved.</p>
<p>Reference: {{.Reference}}</p>`),
	WithdrawalRejected: mustTemplate("Withdrawal rejected", `
<h2>Withdrawal rejected</h2>
<p>Your withdrawal of {{.Amount}} USDT was rejected. The amount has been returned to your profit balance.</p>
<p>Reference: {{.Reference}}</p>`),
	ProfitDistribution: mustTemplate("Weekly profit credited", `
<h2>Profit credited</h2>
<p>{{.Amount}} USD has been credited from your {{.PlanName}} ({{.WeeklyRate}}% weekly).</p>
<p>Next distribution: {{.NextDate}}.</p>`),
	CallScheduled: mustTemplate("Support call scheduled", `
<h2>Support call scheduled</h2>
<p>Your call about <strong>{{.Topic}}</strong> is booked for {{.Date}} at {{.Time}} UTC.</p>
{{if .MeetLink}}<p>Join: <a href="{{.MeetLink}}">{{.MeetLink}}</a></p>{{end}}`),
	CallConfirmation: mustTemplate("Support call confirmed", `
<h2>Support call confirmed</h2>
<p>An agent confirmed your call on {{.Date}} at {{.Time}} UTC.</p>
{{if .MeetLink}}<p>Join: <a href="{{.MeetLink}}">{{.MeetLink}}</a></p>{{end}}`),
	CallCancelled: mustTemplate("Support call cancelled", `
<h2>Support call cancelled</h2>
<p>Your call on {{.Date}} at {{.Time}} UTC was cancelled. Please book another slot.</p>`),
	SupportCallReminder: mustTemplate("Your support call starts soon", `
<h2>Reminder</h2>
<p>Your call about {{.Topic}} starts at {{.Time}} UTC.</p>
{{if .MeetLink}}<p>Join: <a href="{{.MeetLink}}">{{.MeetLink}}</a></p>{{end}}`),
	SupportReply: mustTemplate("New reply to your ticket", `
<h2>{{.Subject}}</h2>
<p>{{.Message}}</p>`),
}

func mustTemplate(subject, content string) emailTemplate {
	t := template.Must(template.New("layout").Parse(layout))
	template.Must(t.New("content").Parse(content))
	return emailTemplate{subject: subject, body: t}
}

// Render формирует тему и HTML-тело письма по шаблону.
func Render(name Template, data any) (string, string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.body.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}

	return tmpl.subject, buf.String(), nil
}
