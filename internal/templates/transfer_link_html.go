package templates

type TransferLinkEmailData struct {
	Logo             string
	SenderName       string
	TransferLink     string
	ExpiresInMinutes int
	Ticket           TicketSummary
}

func (TransferLinkEmailData) Title() string {
	return "Claim your transferred ticket"
}

const transferLinkBody = `
{{define "body"}}
  <p>Hello,</p>
  <p>The transfer from <span class="highlight">{{.SenderName}}</span> is confirmed.
     Click below and sign in to put the ticket in your name.</p>
  <div class="button-container">
    <a class="cta-button" href="{{.TransferLink}}">Claim Ticket</a>
  </div>
{{end}}
`

func RenderTransferLinkHTML(data TransferLinkEmailData) (string, error) {
	return render(transferLinkBody, data)
}
