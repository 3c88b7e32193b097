package templates

import (
	"bytes"
	"html/template"
	"time"
)

// TicketSummary is the slice of a ticket shown in transfer emails.
type TicketSummary struct {
	TicketNumber  string
	From          string
	To            string
	TrainName     string
	Coach         string
	Seat          string
	DepartureTime time.Time
}

func (t TicketSummary) DepartureDate() string {
	return t.DepartureTime.Format("Mon, 02 Jan 2006")
}

func (t TicketSummary) DepartureClock() string {
	return t.DepartureTime.Format("15:04")
}

const layoutHTML = `
{{define "layout"}}
<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8"/>
  <title>{{.Title}}</title>
  <style>
    body {
      margin: 0;
      padding: 0;
      font-family: Arial, sans-serif;
      background-color: #f5f5f5;
      color: #333;
    }
    .email-container {
      width: 100%;
      max-width: 600px;
      margin: 0 auto;
      background-color: #ffffff;
      border-radius: 6px;
      overflow: hidden;
      box-shadow: 0 2px 5px rgba(0,0,0,0.1);
    }
    .header {
      background-color: #1d3557;
      padding: 20px;
      text-align: center;
      color: #fff;
    }
    .header img {
      width: 120px;
      height: auto;
      margin-bottom: 10px;
    }
    .header h1 {
      margin: 10px 0 0;
      font-size: 24px;
    }
    .content {
      padding: 20px;
      text-align: left;
    }
    .ticket {
      border: 1px dashed #1d3557;
      border-radius: 4px;
      padding: 12px 16px;
      margin: 16px 0;
    }
    .ticket td {
      padding: 2px 8px 2px 0;
    }
    .code {
      font-size: 32px;
      letter-spacing: 8px;
      text-align: center;
      font-weight: bold;
      margin: 20px 0;
    }
    .button-container {
      text-align: center;
      margin: 20px 0;
    }
    .cta-button {
      display: inline-block;
      padding: 12px 24px;
      background-color: #1d3557;
      color: #ffffff;
      text-decoration: none;
      border-radius: 4px;
      font-weight: bold;
    }
    .footer {
      font-size: 12px;
      color: #999;
      text-align: center;
      padding: 10px 20px;
    }
    .highlight {
      font-weight: bold;
      color: #333;
    }
  </style>
</head>
<body>
  <table class="email-container" role="presentation" cellspacing="0" cellpadding="0">
    <tr>
      <td>
        <div class="header">
          {{if .Logo}}<img src="{{.Logo}}" alt="Trackside" />{{end}}
          <h1>{{.Title}}</h1>
        </div>
        <div class="content">
          {{template "body" .}}
          <div class="ticket">
            <table role="presentation">
              <tr><td>Ticket</td><td class="highlight">{{.Ticket.TicketNumber}}</td></tr>
              <tr><td>From</td><td class="highlight">{{.Ticket.From}}</td></tr>
              <tr><td>To</td><td class="highlight">{{.Ticket.To}}</td></tr>
              <tr><td>Departure</td><td class="highlight">{{.Ticket.DepartureDate}} {{.Ticket.DepartureClock}}</td></tr>
              <tr><td>Train</td><td class="highlight">{{.Ticket.TrainName}}</td></tr>
              <tr><td>Coach / Seat</td><td class="highlight">{{.Ticket.Coach}} / {{.Ticket.Seat}}</td></tr>
            </table>
          </div>
          <p>This expires in {{.ExpiresInMinutes}} minutes. If you did not expect this email you can ignore it.</p>
        </div>
        <div class="footer">
          <p>&copy; 2026 Trackside. All rights reserved.</p>
        </div>
      </td>
    </tr>
  </table>
</body>
</html>
{{end}}
`

func render(body string, data interface{}) (string, error) {
	tmpl, err := template.New("layout").Parse(layoutHTML)
	if err != nil {
		return "", err
	}
	if _, err := tmpl.Parse(body); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
