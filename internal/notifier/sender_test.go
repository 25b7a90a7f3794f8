package notifier_test

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/notifier"
)

type sentMail struct {
	from       string
	recipients []string
	msg        []byte
}

type fakeMailer struct {
	sent     []sentMail
	err      error
	checkErr error
	checked  int
}

func (f *fakeMailer) Send(ctx context.Context, from string, recipients []string, msg []byte) error {
	f.sent = append(f.sent, sentMail{from: from, recipients: recipients, msg: msg})
	return f.err
}

func (f *fakeMailer) CheckRelay(ctx context.Context) error {
	f.checked++
	return f.checkErr
}

var _ = Describe("Sender", func() {
	var (
		mailCfg *config.MailConfig
		mailer  *fakeMailer
	)

	BeforeEach(func() {
		mailCfg = &config.MailConfig{
			SMTPServer:     "mail.example.com",
			SMTPPort:       587,
			HumanResponder: "vsos-apply@example.com",
			Sender:         "noreply@example.com",
			User:           "mailer",
			Pass:           "secret",
		}
		mailer = &fakeMailer{}
	})

	Describe("NewSender", func() {
		It("should reject an invalid responder mailbox", func() {
			mailCfg.HumanResponder = "not an address"

			_, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)

			Expect(err).To(MatchError(config.ErrConfigurationMissing))
		})
	})

	Describe("Compose", func() {
		It("should address the operator and copy the requester", func() {
			sender, err := notifier.NewSender(mailCfg, config.DeploymentProd, mailer)
			Expect(err).NotTo(HaveOccurred())

			msg, err := sender.Compose(scenarioRequest())

			Expect(err).NotTo(HaveOccurred())
			Expect(msg.From).To(Equal(mail.Address{Name: "vsos noreply", Address: "noreply@example.com"}))
			Expect(msg.ReplyTo).To(Equal([]mail.Address{{Address: "vsos-apply@example.com"}, {Address: "a@ethz.ch"}}))
			Expect(msg.To).To(Equal([]mail.Address{{Address: "vsos-apply@example.com"}}))
			Expect(msg.Cc).To(Equal([]mail.Address{{Address: "a@ethz.ch"}}))
			Expect(msg.Subject).To(Equal("VM Request"))
		})

		It("should mark the subject outside production", func() {
			sender, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)
			Expect(err).NotTo(HaveOccurred())

			msg, err := sender.Compose(scenarioRequest())

			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Subject).To(Equal("[Test-Please-Ignore] VM Request"))
		})
	})

	Describe("Notify", func() {
		It("should send one message to operator and requester", func() {
			sender, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)
			Expect(err).NotTo(HaveOccurred())

			Expect(sender.Notify(context.Background(), scenarioRequest())).To(Succeed())

			Expect(mailer.sent).To(HaveLen(1))
			Expect(mailer.sent[0].from).To(Equal("noreply@example.com"))
			Expect(mailer.sent[0].recipients).To(Equal([]string{"vsos-apply@example.com", "a@ethz.ch"}))
			raw := string(mailer.sent[0].msg)
			Expect(raw).To(ContainSubject("[Test-Please-Ignore] VM Request"))
			Expect(raw).To(ContainSubstring("RAM: 4096 MB\r\n"))
			Expect(raw).To(ContainSubstring("Disk: 20G\r\n"))
		})

		DescribeTable("should fail before contacting the relay on an invalid mailbox",
			func(ethz, external string) {
				sender, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)
				Expect(err).NotTo(HaveOccurred())
				req := scenarioRequest()
				req.EthzEmail = ethz
				req.ExternalEmail = external

				err = sender.Notify(context.Background(), req)

				Expect(err).To(MatchError(notifier.ErrNotificationFailed))
				Expect(mailer.sent).To(BeEmpty())
			},
			Entry("institutional", "not-an-address", "a@example.com"),
			Entry("external", "a@ethz.ch", "a@@example"),
		)

		It("should wrap relay failures", func() {
			mailer.err = errors.New("535 authentication failed")
			sender, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)
			Expect(err).NotTo(HaveOccurred())

			err = sender.Notify(context.Background(), scenarioRequest())

			Expect(err).To(MatchError(notifier.ErrNotificationFailed))
			Expect(err.Error()).To(ContainSubstring("535"))
		})
	})

	Describe("Check", func() {
		It("should check the relay", func() {
			sender, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)
			Expect(err).NotTo(HaveOccurred())

			Expect(sender.Check(context.Background())).To(Succeed())
			Expect(mailer.checked).To(Equal(1))
		})

		It("should report relay check failures", func() {
			mailer.checkErr = errors.New("connection refused")
			sender, err := notifier.NewSender(mailCfg, config.DeploymentTest, mailer)
			Expect(err).NotTo(HaveOccurred())

			Expect(sender.Check(context.Background())).To(MatchError(ContainSubstring("connection refused")))
		})
	})
})

func ContainSubject(subject string) OmegaMatcher {
	return WithTransform(func(raw string) string {
		for _, line := range strings.Split(raw, "\r\n") {
			if v, ok := strings.CutPrefix(line, "Subject: "); ok {
				return v
			}
		}
		return ""
	}, Equal(subject))
}
