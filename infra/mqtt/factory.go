package mqtt

import (
	"github.com/kilianp07/smartcharge/core/factory"
	"github.com/kilianp07/smartcharge/core/vehicle"
)

func init() {
	_ = vehicle.RegisterCommandSink("mqtt", func(conf map[string]any) (vehicle.CommandSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s, err := NewCommandSink(c)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
