package templates

type TransferOtpEmailData struct {
	Logo             string
	SenderName       string
	Code             string
	ExpiresInMinutes int
	Ticket           TicketSummary
}

func (TransferOtpEmailData) Title() string {
	return "Your OTP for Ticket Transfer"
}

const transferOtpBody = `
{{define "body"}}
  <p>Hello,</p>
  <p><span class="highlight">{{.SenderName}}</span> wants to transfer a train ticket to you.
     Share this code with them to confirm the transfer.</p>
  <div class="code">{{.Code}}</div>
{{end}}
`

func RenderTransferOtpHTML(data TransferOtpEmailData) (string, error) {
	return render(transferOtpBody, data)
}
