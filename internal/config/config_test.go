package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/vmrequest-service/internal/config"
)

var requiredEnv = map[string]string{
	"HCAPTCHA_SITEKEY":     "site-key",
	"HCAPTCHA_SECRET":      "secret",
	"MAIL_SMTP_SERVER":     "mail.example.com",
	"MAIL_HUMAN_RESPONDER": "vsos-apply@example.com",
	"MAIL_SENDER":          "noreply@example.com",
	"MAIL_USER":            "mailer",
	"MAIL_PASS":            "hunter2",
	"DEPLOYMENT":           "Test",
}

func setEnv(env map[string]string) {
	for k, v := range env {
		Expect(os.Setenv(k, v)).To(Succeed())
		DeferCleanup(os.Unsetenv, k)
	}
}

var _ = Describe("Load", func() {
	Context("when every required variable is set", func() {
		It("should apply defaults for the optional ones", func() {
			setEnv(requiredEnv)

			cfg, err := config.Load()

			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Service.Address).To(Equal(":8000"))
			Expect(cfg.HCaptcha.SiteKey).To(Equal("site-key"))
			Expect(cfg.HCaptcha.VerifyURL).To(Equal("https://hcaptcha.com/siteverify"))
			Expect(cfg.HCaptcha.Timeout).To(Equal(10 * time.Second))
			Expect(cfg.Mail.SMTPPort).To(Equal(587))
			Expect(cfg.Mail.Timeout).To(Equal(30 * time.Second))
			Expect(cfg.Netcenter.Host).To(Equal("https://www.netcenter.ethz.ch"))
			Expect(cfg.Admin.Enabled).To(BeFalse())
			Expect(cfg.Admin.Subnet).To(Equal("192.33.91.0"))
			Expect(cfg.Events.NATSURL).To(BeEmpty())
			Expect(cfg.Deployment).To(Equal(config.DeploymentTest))
		})
	})

	Context("when a required variable is missing", func() {
		It("should return ErrConfigurationMissing", func() {
			env := map[string]string{}
			for k, v := range requiredEnv {
				env[k] = v
			}
			delete(env, "HCAPTCHA_SECRET")
			setEnv(env)

			_, err := config.Load()

			Expect(err).To(MatchError(config.ErrConfigurationMissing))
			Expect(err.Error()).To(ContainSubstring("HCAPTCHA_SECRET"))
		})
	})

	Context("when the deployment is unknown", func() {
		It("should refuse to load", func() {
			setEnv(requiredEnv)
			setEnv(map[string]string{"DEPLOYMENT": "staging"})

			_, err := config.Load()

			Expect(err).To(MatchError(config.ErrConfigurationMissing))
		})
	})

	Context("when the admin surface is enabled without netcenter credentials", func() {
		It("should refuse to load", func() {
			setEnv(requiredEnv)
			setEnv(map[string]string{"ADMIN_ENABLED": "true"})

			_, err := config.Load()

			Expect(err).To(MatchError(config.ErrConfigurationMissing))
			Expect(err.Error()).To(ContainSubstring("NETCENTER_USER"))
		})
	})
})

var _ = Describe("Deployment", func() {
	It("should decode case-insensitively", func() {
		var d config.Deployment
		Expect(d.Decode("prod")).To(Succeed())
		Expect(d.IsProd()).To(BeTrue())
		Expect(d.Decode("Test")).To(Succeed())
		Expect(d.IsTest()).To(BeTrue())
		Expect(d.Decode("")).NotTo(Succeed())
	})
})
