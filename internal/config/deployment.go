package config

import (
	"fmt"
	"strings"
)

// Deployment selects between the test and production instance of the service.
type Deployment string

const (
	DeploymentTest Deployment = "Test"
	DeploymentProd Deployment = "Prod"
)

// Decode implements envconfig.Decoder.
func (d *Deployment) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "test":
		*d = DeploymentTest
	case "prod":
		*d = DeploymentProd
	default:
		return fmt.Errorf("unknown deployment %q, expected Test or Prod", value)
	}
	return nil
}

func (d Deployment) IsTest() bool { return d == DeploymentTest }

func (d Deployment) IsProd() bool { return d == DeploymentProd }
