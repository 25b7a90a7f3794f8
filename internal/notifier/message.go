package notifier

import (
	"fmt"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dcm-project/vmrequest-service/internal/service/model"
)

// Message is a fully addressed plain-text e-mail.
type Message struct {
	From    mail.Address
	ReplyTo []mail.Address
	To      []mail.Address
	Cc      []mail.Address
	Subject string
	Body    string
}

// Recipients returns the envelope recipients (To and Cc).
func (m *Message) Recipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc))
	for _, a := range m.To {
		rcpts = append(rcpts, a.Address)
	}
	for _, a := range m.Cc {
		rcpts = append(rcpts, a.Address)
	}
	return rcpts
}

// Bytes renders the message in RFC 5322 form. The body is quoted-printable,
// so every line ending becomes CRLF and no line exceeds 76 characters.
func (m *Message) Bytes(date time.Time) []byte {
	var b strings.Builder
	header := func(name, value string) {
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}

	header("From", m.From.String())
	if len(m.ReplyTo) > 0 {
		header("Reply-To", joinAddresses(m.ReplyTo))
	}
	header("To", joinAddresses(m.To))
	if len(m.Cc) > 0 {
		header("Cc", joinAddresses(m.Cc))
	}
	header("Subject", m.Subject)
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(m.From.Address)))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	// Writes to a strings.Builder cannot fail.
	_, _ = qp.Write([]byte(m.Body))
	_ = qp.Close()
	return []byte(b.String())
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, len(addrs))
	for i := range addrs {
		parts[i] = addrs[i].String()
	}
	return strings.Join(parts, ", ")
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return "localhost"
}

// FormatBody renders the deterministic notification body for a request.
// RAM is converted from GiB to MiB, the wishes line is only present when
// the request carries one.
func FormatBody(req *model.VMRequest) string {
	var b strings.Builder

	b.WriteString("This is a generated E-Mail to confirm your VM Request.\n")
	b.WriteString("If you have not requested this or there are missing or incomplete information, please respond to this e-mail.\n")
	b.WriteString("\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "OS: %s\n", req.OS)
	fmt.Fprintf(&b, "Hostname: %s\n", req.Hostname)
	fmt.Fprintf(&b, "RAM: %d MB\n", int64(req.RAMGiB)*1024)
	fmt.Fprintf(&b, "Disk: %dG\n", req.DiskGB)
	fmt.Fprintf(&b, "SSH keys:\n%s\n", req.SSHKeys)
	fmt.Fprintf(&b, "University E-Mail: %s\n", req.EthzEmail)
	fmt.Fprintf(&b, "External E-Mail: %s\n", req.ExternalEmail)
	fmt.Fprintf(&b, "Cores: %d\n", req.Cores)

	if req.Wishes != nil {
		fmt.Fprintf(&b, "requests: %s\n", *req.Wishes)
	}

	return b.String()
}
