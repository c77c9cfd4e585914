package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/matfroh/abl-emh1-modbus/internal/config"
	"github.com/matfroh/abl-emh1-modbus/internal/core/domain"
	"github.com/matfroh/abl-emh1-modbus/internal/util/actorutil"
	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery configs once the
// EVSE and MQTT actors report healthy, then goes dormant.
type HADiscoveryActor struct {
	config           *config.Config
	behavior         actor.Behavior
	stash            *actorutil.Stash
	evseActor        *actor.PID
	mqttActor        *actor.PID
	evseActorHealthy bool
	mqttActorHealthy bool
	healthyRecv      int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, evseActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		evseActor: evseActor,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check EVSE and MQTT actor healthy
		state.healthyRecv = 0
		state.evseActorHealthy = false
		state.mqttActorHealthy = false
		// EVSE Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_EVSE,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_EVSE:
				state.evseActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.evseActorHealthy && state.mqttActorHealthy {
				// Ask EVSE GetChargerInfoRequest
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, domain.GetChargerInfoRequest{}, 15*time.Second), func(err error) any {
					return domain.GetChargerInfoResponse{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					}
				})
				state.behavior.Become(state.WaitingInfoReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or EVSE Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetChargerInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetChargerInfoResponse", zap.Any("response", msg))

		var sensors []domain.GenericSensor
		var switches []domain.GenericSwitch
		var inputNumbers []domain.GenericInputNumber

		bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
		bridgeSensors := domain.BridgeSensors(bridgeDevice)
		sensors = append(sensors, bridgeSensors...)

		chargerDevice := domain.ChargerDevice(msg.Identity, state.config.MQTT.BaseTopic)
		chargerDevice.ViaDevice = bridgeDevice.Id
		chargerSensors := domain.ChargerSensors(chargerDevice)
		for i := range chargerSensors {
			if i > 0 {
				chargerSensors[i].Device = domain.IdDevice(chargerDevice)
			}
			sensors = append(sensors, chargerSensors[i])
		}

		switches = append(switches, domain.ChargerSwitches(domain.IdDevice(chargerDevice))...)
		inputNumbers = append(inputNumbers, domain.ChargerInputNumbers(domain.IdDevice(chargerDevice),
			emh1_modbus.MinCurrentAmps, uint8(state.config.Charger.MaxCurrent))...)

		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:      sensors,
			Switches:     switches,
			InputNumbers: inputNumbers,
		})
		state.behavior.Become(state.Done)

	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
