package psa

import (
	"github.com/kilianp07/smartcharge/core/factory"
	"github.com/kilianp07/smartcharge/core/vehicle"
	"github.com/kilianp07/smartcharge/infra/logger"
)

func init() {
	_ = vehicle.RegisterCommandSink("psa", func(conf map[string]any) (vehicle.CommandSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		cl, err := New(c, logger.New("psa-sink"))
		if err != nil {
			return nil, err
		}
		return cl, nil
	})
}
