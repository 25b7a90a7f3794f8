package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/dcm-project/vmrequest-service/internal/api_server"
	"github.com/dcm-project/vmrequest-service/internal/captcha"
	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/events"
	handlers "github.com/dcm-project/vmrequest-service/internal/handlers/v1alpha1"
	"github.com/dcm-project/vmrequest-service/internal/netcenter"
	"github.com/dcm-project/vmrequest-service/internal/notifier"
	"github.com/dcm-project/vmrequest-service/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the VM request form",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer zap.S().Info("VM request service stopped")

		cfg, err := loadConfig()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}
		zap.S().Infow("Starting VM request service", "deployment", cfg.Deployment, "address", cfg.Service.Address)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		sender, err := newSender(cfg)
		if err != nil {
			zap.S().Fatalw("initializing notifier", "error", err)
		}
		if cfg.Mail.StartupCheck {
			zap.S().Info("Checking SMTP relay")
			if err := sender.Check(ctx); err != nil {
				zap.S().Fatalw("SMTP startup check failed", "error", err)
			}
		}

		var opts []service.Option
		if cfg.Events.NATSURL != "" {
			publisher, err := events.NewPublisher(events.PublisherConfig{
				NATSURL:      cfg.Events.NATSURL,
				Timeout:      cfg.Events.Timeout,
				MaxReconnect: cfg.Events.MaxReconnect,
			})
			if err != nil {
				zap.S().Warnw("Event publishing disabled", "error", err)
			} else {
				defer publisher.Close()
				opts = append(opts, service.WithEventPublisher(publisher))
			}
		}

		svc := service.NewVMRequestService(captcha.NewVerifier(cfg.HCaptcha), sender, opts...)
		form := handlers.NewFormHandler(cfg.HCaptcha.SiteKey, svc)

		admin, err := newAdminHandler(cfg)
		if err != nil {
			zap.S().Fatalw("initializing admin surface", "error", err)
		}

		listener, err := newListener(cfg.Service.Address)
		if err != nil {
			zap.S().Fatalw("creating listener", "error", err)
		}

		server := apiserver.New(cfg, listener, form, admin)
		if err := server.Run(ctx); err != nil {
			return fmt.Errorf("running server: %w", err)
		}
		return nil
	},
}

func newSender(cfg *config.Config) (*notifier.Sender, error) {
	return notifier.NewSender(cfg.Mail, cfg.Deployment, notifier.NewSMTPMailer(cfg.Mail))
}

// newAdminHandler returns nil when the admin surface is disabled.
func newAdminHandler(cfg *config.Config) (*handlers.AdminHandler, error) {
	if !cfg.Admin.Enabled {
		return nil, nil
	}
	ipam, err := netcenter.NewClient(cfg.Netcenter)
	if err != nil {
		return nil, err
	}
	return handlers.NewAdminHandler(cfg.Admin, cfg.Deployment, ipam)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
