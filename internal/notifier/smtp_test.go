package notifier_test

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/notifier"
)

// serveWithoutStartTLS accepts one connection and advertises only AUTH.
func serveWithoutStartTLS(l net.Listener) {
	conn, err := l.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		switch {
		case len(line) >= 4 && line[:4] == "EHLO":
			_ = tp.PrintfLine("250-fake")
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case line == "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

// relaySession is what the STARTTLS relay saw during one connection.
type relaySession struct {
	upgraded bool
	auth     string
	mailFrom string
	rcpts    []string
	data     string
}

// serveStartTLSRelay accepts one connection, requires STARTTLS before AUTH
// and reports the session on QUIT.
func serveStartTLSRelay(l net.Listener, serverTLS *tls.Config, rejectAuth bool, sessions chan<- relaySession) {
	conn, err := l.Accept()
	if err != nil {
		return
	}
	defer func() { conn.Close() }()

	var s relaySession
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, _, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO":
			_ = tp.PrintfLine("250-fake")
			if !s.upgraded {
				_ = tp.PrintfLine("250-STARTTLS")
			}
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case "STARTTLS":
			_ = tp.PrintfLine("220 2.0.0 ready")
			tlsConn := tls.Server(conn, serverTLS)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			tp = textproto.NewConn(conn)
			s.upgraded = true
		case "AUTH":
			if !s.upgraded {
				_ = tp.PrintfLine("530 5.7.0 must issue STARTTLS first")
				continue
			}
			if fields := strings.Fields(line); len(fields) == 3 {
				decoded, _ := base64.StdEncoding.DecodeString(fields[2])
				s.auth = string(decoded)
			}
			if rejectAuth {
				_ = tp.PrintfLine("535 5.7.8 authentication failed")
				continue
			}
			_ = tp.PrintfLine("235 2.7.0 accepted")
		case "MAIL":
			s.mailFrom = line
			_ = tp.PrintfLine("250 ok")
		case "RCPT":
			s.rcpts = append(s.rcpts, line)
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.data = string(data)
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			sessions <- s
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

var _ = Describe("SMTPMailer", func() {
	var listener net.Listener

	BeforeEach(func() {
		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		listener.Close()
	})

	mailConfig := func() *config.MailConfig {
		host, port, err := net.SplitHostPort(listener.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		p, err := strconv.Atoi(port)
		Expect(err).NotTo(HaveOccurred())
		return &config.MailConfig{
			SMTPServer: host,
			SMTPPort:   p,
			User:       "mailer",
			Pass:       "secret",
			Timeout:    2 * time.Second,
		}
	}

	Context("when the relay offers STARTTLS", func() {
		var (
			sessions  chan relaySession
			serverTLS *tls.Config
			clientTLS *tls.Config
		)

		BeforeEach(func() {
			// httptest provides a self-signed certificate valid for 127.0.0.1.
			certServer := httptest.NewTLSServer(http.NotFoundHandler())
			DeferCleanup(certServer.Close)
			serverTLS = certServer.TLS.Clone()
			clientTLS = certServer.Client().Transport.(*http.Transport).TLSClientConfig.Clone()

			sessions = make(chan relaySession, 1)
		})

		It("should upgrade, authenticate and deliver to every recipient", func() {
			go serveStartTLSRelay(listener, serverTLS, false, sessions)
			mailer := notifier.NewSMTPMailer(mailConfig(), notifier.WithTLSConfig(clientTLS))
			msg := []byte("Subject: VM Request\r\n\r\nline one\r\n.starts with a dot\r\n")

			err := mailer.Send(context.Background(), "noreply@example.com", []string{"ops@example.com", "a@ethz.ch"}, msg)

			Expect(err).NotTo(HaveOccurred())
			var s relaySession
			Eventually(sessions).Should(Receive(&s))
			Expect(s.upgraded).To(BeTrue())
			Expect(s.auth).To(Equal("\x00mailer\x00secret"))
			Expect(s.mailFrom).To(Equal("MAIL FROM:<noreply@example.com>"))
			Expect(s.rcpts).To(Equal([]string{"RCPT TO:<ops@example.com>", "RCPT TO:<a@ethz.ch>"}))
			Expect(s.data).To(Equal("Subject: VM Request\n\nline one\n.starts with a dot\n"))
		})

		It("should check the relay without sending a message", func() {
			go serveStartTLSRelay(listener, serverTLS, false, sessions)
			mailer := notifier.NewSMTPMailer(mailConfig(), notifier.WithTLSConfig(clientTLS))

			Expect(mailer.CheckRelay(context.Background())).To(Succeed())

			var s relaySession
			Eventually(sessions).Should(Receive(&s))
			Expect(s.upgraded).To(BeTrue())
			Expect(s.auth).To(Equal("\x00mailer\x00secret"))
			Expect(s.mailFrom).To(BeEmpty())
			Expect(s.data).To(BeEmpty())
		})

		It("should report rejected credentials", func() {
			go serveStartTLSRelay(listener, serverTLS, true, sessions)
			mailer := notifier.NewSMTPMailer(mailConfig(), notifier.WithTLSConfig(clientTLS))

			err := mailer.Send(context.Background(), "noreply@example.com", []string{"ops@example.com"}, []byte("hi"))

			Expect(err).To(MatchError(ContainSubstring("authenticating as mailer")))
		})

		It("should refuse a relay certificate it does not trust", func() {
			go serveStartTLSRelay(listener, serverTLS, false, sessions)
			mailer := notifier.NewSMTPMailer(mailConfig())

			err := mailer.CheckRelay(context.Background())

			Expect(err).To(MatchError(ContainSubstring("STARTTLS with")))
		})
	})

	Context("when the relay does not offer STARTTLS", func() {
		BeforeEach(func() {
			go serveWithoutStartTLS(listener)
		})

		It("should refuse to send", func() {
			err := notifier.NewSMTPMailer(mailConfig()).Send(context.Background(), "noreply@example.com", []string{"ops@example.com"}, []byte("hi"))

			Expect(err).To(MatchError(ContainSubstring("STARTTLS")))
		})

		It("should fail the relay check", func() {
			Expect(notifier.NewSMTPMailer(mailConfig()).CheckRelay(context.Background())).To(MatchError(ContainSubstring("STARTTLS")))
		})
	})

	It("should report connection failures", func() {
		mailer := notifier.NewSMTPMailer(&config.MailConfig{
			SMTPServer: "127.0.0.1",
			SMTPPort:   1,
			Timeout:    500 * time.Millisecond,
		})

		Expect(mailer.CheckRelay(context.Background())).To(MatchError(ContainSubstring("connecting to")))
	})
})
