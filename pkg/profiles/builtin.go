package profiles

import (
	"github.com/openloom/openloom/pkg/core"
)

// GetBuiltinProfiles returns the framework profiles that ship with the
// engine, lowest compliance posture first.
func GetBuiltinProfiles() []*core.FrameworkProfile {
	return []*core.FrameworkProfile{
		baselineProfile(),
		enhancedProfile(),
		maximumProfile(),
	}
}

// baselineProfile is the default posture: encryption on, modest sizing,
// production protected.
func baselineProfile() *core.FrameworkProfile {
	return &core.FrameworkProfile{
		Name:                  "baseline",
		Version:               "1.0.0",
		Description:           "Default compliance posture with sane security defaults",
		ProtectedEnvironments: []string{"prod"},
		Defaults: map[string]map[string]interface{}{
			"storage.bucket": {
				"storage": map[string]interface{}{
					"size": 20,
					"type": "standard",
				},
				"encryption": map[string]interface{}{
					"enabled": true,
					"kind":    "provider-managed",
				},
				"versioning":   false,
				"publicAccess": false,
			},
			"messaging.queue": {
				"queue": map[string]interface{}{
					"visibilityTimeout": 30,
					"retentionSeconds":  86400,
				},
				"encryption": map[string]interface{}{
					"enabled": true,
				},
				"deadLetter": map[string]interface{}{
					"enabled": false,
				},
			},
			"compute.service": {
				"service": map[string]interface{}{
					"replicas": 1,
					"port":     8080,
				},
				"resources": map[string]interface{}{
					"cpu":    "250m",
					"memory": "256Mi",
				},
				"logging": map[string]interface{}{
					"level": "info",
				},
			},
		},
		Environments: map[string]map[string]interface{}{
			"dev": {
				"region": "eu-west-1",
			},
			"staging": {
				"region": "eu-west-1",
			},
			"prod": {
				"region": "eu-central-1",
			},
		},
	}
}

// enhancedProfile tightens the baseline: customer-managed keys,
// versioned storage, dead-lettering, and a protected staging.
func enhancedProfile() *core.FrameworkProfile {
	return &core.FrameworkProfile{
		Name:                  "enhanced",
		Version:               "1.0.0",
		Description:           "Hardened posture with customer-managed encryption and audit logging",
		ProtectedEnvironments: []string{"prod", "staging"},
		Defaults: map[string]map[string]interface{}{
			"storage.bucket": {
				"storage": map[string]interface{}{
					"size": 50,
					"type": "standard",
				},
				"encryption": map[string]interface{}{
					"enabled": true,
					"kind":    "customer-managed",
				},
				"versioning":   true,
				"publicAccess": false,
				"audit": map[string]interface{}{
					"accessLogs": true,
				},
			},
			"messaging.queue": {
				"queue": map[string]interface{}{
					"visibilityTimeout": 30,
					"retentionSeconds":  345600,
				},
				"encryption": map[string]interface{}{
					"enabled": true,
					"kind":    "customer-managed",
				},
				"deadLetter": map[string]interface{}{
					"enabled":     true,
					"maxReceives": 5,
				},
			},
			"compute.service": {
				"service": map[string]interface{}{
					"replicas": 2,
					"port":     8080,
				},
				"resources": map[string]interface{}{
					"cpu":    "500m",
					"memory": "512Mi",
				},
				"logging": map[string]interface{}{
					"level":  "info",
					"format": "json",
				},
				"tls": map[string]interface{}{
					"enabled": true,
				},
			},
		},
		Environments: map[string]map[string]interface{}{
			"dev": {
				"region": "eu-west-1",
			},
			"staging": {
				"region": "eu-central-1",
			},
			"prod": {
				"region": "eu-central-1",
			},
		},
	}
}

// maximumProfile is the strictest posture. Every environment except dev
// is protected and the permitted component types are pinned explicitly.
func maximumProfile() *core.FrameworkProfile {
	return &core.FrameworkProfile{
		Name:                  "maximum",
		Version:               "1.0.0",
		Description:           "Strictest posture for regulated workloads",
		ProtectedEnvironments: []string{"prod", "staging"},
		AllowedTypes:          []string{"storage.bucket", "messaging.queue", "compute.service"},
		Defaults: map[string]map[string]interface{}{
			"storage.bucket": {
				"storage": map[string]interface{}{
					"size": 100,
					"type": "hardened",
				},
				"encryption": map[string]interface{}{
					"enabled": true,
					"kind":    "customer-managed",
				},
				"versioning":   true,
				"publicAccess": false,
				"audit": map[string]interface{}{
					"accessLogs":    true,
					"objectLogs":    true,
					"retentionDays": 365,
				},
			},
			"messaging.queue": {
				"queue": map[string]interface{}{
					"visibilityTimeout": 30,
					"retentionSeconds":  1209600,
				},
				"encryption": map[string]interface{}{
					"enabled": true,
					"kind":    "customer-managed",
				},
				"deadLetter": map[string]interface{}{
					"enabled":     true,
					"maxReceives": 3,
				},
			},
			"compute.service": {
				"service": map[string]interface{}{
					"replicas": 3,
					"port":     8443,
				},
				"resources": map[string]interface{}{
					"cpu":    "1000m",
					"memory": "1Gi",
				},
				"logging": map[string]interface{}{
					"level":  "info",
					"format": "json",
				},
				"tls": map[string]interface{}{
					"enabled": true,
					"mutual":  true,
				},
			},
		},
		Environments: map[string]map[string]interface{}{
			"dev": {
				"region": "eu-central-1",
			},
			"staging": {
				"region": "eu-central-1",
			},
			"prod": {
				"region": "eu-central-1",
			},
		},
	}
}
