package providers

import (
	"github.com/openloom/openloom/pkg/factory"
)

// RegisterBuiltins wires the builtin creators into a factory provider,
// including the hardened bucket variant for the maximum framework.
func RegisterBuiltins(p *factory.Provider) error {
	for _, c := range []factory.Creator{
		&BucketCreator{},
		&QueueCreator{},
		&ServiceCreator{},
	} {
		if err := p.RegisterCreator(c); err != nil {
			return err
		}
	}
	return p.RegisterHardenedCreator("maximum", &HardenedBucketCreator{})
}
