package spotprice

import (
	"github.com/kilianp07/smartcharge/core/factory"
	"github.com/kilianp07/smartcharge/core/pricing"
	"github.com/kilianp07/smartcharge/infra/logger"
)

// init registers the built-in price oracles.
func init() {
	_ = pricing.RegisterOracle("sahkohinta", func(conf map[string]any) (pricing.Oracle, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c, logger.New("spotprice"))
	})

	_ = pricing.RegisterOracle("static", func(conf map[string]any) (pricing.Oracle, error) {
		var s Static
		if err := factory.Decode(conf, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
}
