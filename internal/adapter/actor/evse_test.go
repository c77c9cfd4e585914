package actor

import (
	"testing"
	"time"

	"github.com/matfroh/abl-emh1-modbus/internal/core/domain"
	"github.com/matfroh/abl-emh1-modbus/internal/util/actorutil"
	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestEVSEDevice(t *testing.T, transport *emh1_modbus.TestTransport) *emh1_modbus.Device {
	device, err := emh1_modbus.CreateTestDevice(transport, emh1_modbus.DeviceConfig{
		SlaveID:        1,
		MaxCurrentAmps: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	return device
}

func stateReadCommand(t *testing.T) []byte {
	cmd, err := emh1_modbus.EncodeCommand(1, 0x03, 0x0033, 0x00, 0x03)
	if err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestGetChargerDataEVSEActor(t *testing.T) {

	assert := assert.New(t)

	transport := emh1_modbus.NewTestTransport()
	transport.Stub(stateReadCommand(t),
		emh1_modbus.TestResponse([]byte{0x01, 0x03, 0x06, 0x33, 0x80, 0xC2, 0x0E, 0x0E, 0x0E}))
	device := newTestEVSEDevice(t, transport)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewEVSEActor(device, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.GetChargerDataRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetChargerDataResponse)

	assert.False(resp.HasResponseError(), "no response error")
	assert.True(resp.Data.Available, "charger available")
	assert.Equal(emh1_modbus.StateEVCharged, resp.Data.State, "charger state")
	assert.True(resp.Data.ChargingEnabled, "charging enabled")
	assert.Equal(42.0, resp.Data.Currents.Total(), "total current")
	assert.Equal(9660.0, resp.ConsumptionWatt, "consumption")

	context.Stop(pid)

	as.Shutdown()
}

func TestSetChargeCurrentEVSEActor(t *testing.T) {

	assert := assert.New(t)

	writeCmd, err := emh1_modbus.EncodeCommand(1, 0x10, 0x0014, 0x00, 0x01, 0x02, 0x00, 0xA6)
	if err != nil {
		t.Fatal(err)
	}

	transport := emh1_modbus.NewTestTransport()
	transport.Stub(writeCmd, []byte(">011000140001D9"))
	device := newTestEVSEDevice(t, transport)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewEVSEActor(device, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.SetChargeCurrentRequest{Amps: 10}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetChargeCurrentResponse)

	assert.False(resp.HasResponseError(), "no response error")
	assert.Equal(uint8(10), resp.Amps, "amps")

	context.Stop(pid)

	as.Shutdown()
}

func TestSetChargeCurrentOutOfRangeEVSEActor(t *testing.T) {

	assert := assert.New(t)

	transport := emh1_modbus.NewTestTransport()
	device := newTestEVSEDevice(t, transport)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewEVSEActor(device, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.SetChargeCurrentRequest{Amps: 40}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetChargeCurrentResponse)

	assert.True(resp.HasResponseError(), "response error expected")
	// only the wake-up frames went out, the write itself was rejected
	assert.Len(transport.Writes, 3, "no write frame sent")

	context.Stop(pid)

	as.Shutdown()
}
