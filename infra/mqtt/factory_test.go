package mqtt

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/smartcharge/core/factory"
	"github.com/kilianp07/smartcharge/core/vehicle"
)

func TestCommandSinkFactory(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer restoreClient()

	s, err := vehicle.NewCommandSink(factory.ModuleConfig{Type: "mqtt", Conf: map[string]any{
		"broker":      "tcp://localhost:1883",
		"ack_timeout": "3s",
		"qos":         map[string]any{"command": 2},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sink, ok := s.(*CommandSink)
	if !ok {
		t.Fatalf("expected *CommandSink, got %T", s)
	}
	if sink.ackTimeout != 3*time.Second || sink.qosFor("command") != 2 {
		t.Fatalf("conf not decoded: timeout=%s qos=%d", sink.ackTimeout, sink.qosFor("command"))
	}
	if _, err := vehicle.NewCommandSink(factory.ModuleConfig{Type: "mqtt"}); err == nil {
		t.Fatal("expected error without broker")
	}
}
