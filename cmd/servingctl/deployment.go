package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// deploymentMaxSize caps how large a deployment.yaml may be before
// parsing, the same YAML-bomb guard the alerting rule parsers use.
const deploymentMaxSize = 1 << 20 // 1 MiB

// deploymentDescriptor is an application directory's optional
// deployment.yaml, declaring which production zones it may be
// submitted to. Its absence means prod submit accepts any zone.
type deploymentDescriptor struct {
	Zones []string `yaml:"zones" validate:"required,min=1,dive,required"`
}

var deploymentValidator = validator.New()

// loadDeploymentDescriptor reads deployment.yaml out of dir, returning
// (nil, nil) when the file is absent.
func loadDeploymentDescriptor(dir string) (*deploymentDescriptor, error) {
	path := filepath.Join(dir, "deployment.yaml")
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("servingctl: stat deployment.yaml: %w", err)
	}
	if info.Size() > deploymentMaxSize {
		return nil, fmt.Errorf("servingctl: deployment.yaml too large: %d bytes (max %d)", info.Size(), deploymentMaxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("servingctl: read deployment.yaml: %w", err)
	}

	var desc deploymentDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("servingctl: parse deployment.yaml: %w", err)
	}
	if err := deploymentValidator.Struct(&desc); err != nil {
		return nil, fmt.Errorf("servingctl: invalid deployment.yaml: %w", err)
	}
	return &desc, nil
}

// allowsZone reports whether a descriptor permits submission to zone.
// A nil descriptor (no deployment.yaml present) permits every zone.
func (d *deploymentDescriptor) allowsZone(zone string) bool {
	if d == nil {
		return true
	}
	for _, z := range d.Zones {
		if z == zone {
			return true
		}
	}
	return false
}
