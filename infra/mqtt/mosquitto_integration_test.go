//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/test/util"
)

func TestCommandSink_Mosquitto(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	defer cleanup()

	bridge := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("bridge"))
	tok := bridge.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	defer bridge.Disconnect(100)
	sub := bridge.Subscribe("vehicle/+/charge_hour", 1, func(c paho.Client, m paho.Message) {
		var cmd command
		if json.Unmarshal(m.Payload(), &cmd) != nil {
			return
		}
		vin := strings.Split(m.Topic(), "/")[1]
		c.Publish("vehicle/"+vin+"/ack", 1, false, fmt.Sprintf(`{"command_id":"%s","status":"ok"}`, cmd.CommandID))
	})
	require.True(t, sub.WaitTimeout(5*time.Second))
	require.NoError(t, sub.Error())

	sink, err := NewCommandSink(Config{Broker: broker, ClientID: "sink", AckTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.SetChargeStart(ctx, "VR3TEST", clock.Time{Hour: 23, Minute: 36}))
}
