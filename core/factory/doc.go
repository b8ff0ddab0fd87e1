// Package factory provides a small generic registry used to instantiate
// pluggable modules (price oracles, command sinks, metrics sinks) from
// configuration. A module is described by a type string and a map of raw
// settings; factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[pricing.Oracle]()
//	reg.Register("static", func(conf map[string]any) (pricing.Oracle, error) {
//	    var c struct{ Prices []float64 `json:"prices"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newStatic(c.Prices), nil
//	})
//	o, err := reg.Create(factory.ModuleConfig{Type: "static", Conf: map[string]any{"prices": []float64{1, 2}}})
package factory
