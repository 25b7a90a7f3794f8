package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// VMRequest is a single provisioning request as submitted through the form.
// Field names follow the form field names.
type VMRequest struct {
	EthzEmail       string  `json:"ethz_email"`
	ExternalEmail   string  `json:"external_email"`
	OS              string  `json:"os"`
	SSHKeys         string  `json:"ssh_keys"`
	Hostname        string  `json:"hostname"`
	Cores           int     `json:"cores"`
	RAMGiB          int     `json:"ram"`
	DiskGB          int     `json:"disk"`
	Wishes          *string `json:"wishes,omitempty"`
	Bot             bool    `json:"bot"`
	CaptchaResponse string  `json:"h-captcha-response"`
}

// ErrInvalidRequest marks a submission that fails field validation.
var ErrInvalidRequest = errors.New("invalid request")

// MaxRAMGiB bounds ram so the MiB figure in the notification stays exact.
// Keep in sync with the ram maximum in api/v1alpha1/openapi.yaml.
const MaxRAMGiB = 1 << 16

// Validate checks the fields the caller is responsible for. E-mail syntax is
// checked by the notifier.
func (r *VMRequest) Validate() error {
	var problems []string
	for name, value := range map[string]string{
		"os":                 r.OS,
		"hostname":           r.Hostname,
		"ssh_keys":           r.SSHKeys,
		"ethz_email":         r.EthzEmail,
		"external_email":     r.ExternalEmail,
		"h-captcha-response": r.CaptchaResponse,
	} {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, fmt.Sprintf("%s is required", name))
		}
	}
	for name, value := range map[string]int{
		"cores": r.Cores,
		"ram":   r.RAMGiB,
		"disk":  r.DiskGB,
	} {
		if value < 1 {
			problems = append(problems, fmt.Sprintf("%s must be a positive integer", name))
		}
	}
	if r.RAMGiB > MaxRAMGiB {
		problems = append(problems, fmt.Sprintf("ram must not exceed %d", MaxRAMGiB))
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}
