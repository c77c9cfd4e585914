package actor

import (
	"fmt"
	"time"

	"github.com/matfroh/abl-emh1-modbus/internal/core/domain"
	"github.com/matfroh/abl-emh1-modbus/internal/util/actorutil"
	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// readTimeout covers a failed first read plus the wake-up sequence and the
// retry; writeTimeout covers a single confirmed write.
const (
	readTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// EVSEActor owns the serial link to the charger. Requests run as background
// tasks while the actor parks in a waiting state, so the single half-duplex
// line never sees interleaved transactions.
type EVSEActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	device   *emh1_modbus.Device
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewEVSEActor(device *emh1_modbus.Device, logger *zap.Logger) *EVSEActor {
	act := &EVSEActor{
		device:   device,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_EVSE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *EVSEActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EVSEActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("evse@starting started")
		if err := state.device.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.device.Close()
	default:
		state.logger.Debug("evse@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EVSEActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("evse@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_EVSE,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetChargerDataRequest:
		state.logger.Debug("evse@default: GetChargerDataRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getChargerData),
			mapTaskResult[domain.GetChargerDataResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetChargerDataResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.GetChargerInfoRequest:
		state.logger.Debug("evse@default: GetChargerInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getChargerInfo),
			mapTaskResult[domain.GetChargerInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetChargerInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.GetDutyCycleRequest:
		state.logger.Debug("evse@default: GetDutyCycleRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDutyCycle),
			mapTaskResult[domain.GetDutyCycleResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDutyCycleResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.WakeUpRequest:
		state.logger.Debug("evse@default: WakeUpRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.wakeUp),
			mapTaskResult[domain.WakeUpResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WakeUpResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.SetChargeCurrentRequest:
		state.logger.Debug("evse@default: SetChargeCurrentRequest", zap.Uint8("amps", msg.Amps))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		amps := msg.Amps

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetChargeCurrentResponse, error) {
			return state.setChargeCurrent(amps)
		}),
			mapTaskResult[domain.SetChargeCurrentResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetChargeCurrentResponse{
					ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(writeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.SetChargingEnabledRequest:
		state.logger.Debug("evse@default: SetChargingEnabledRequest", zap.Bool("enable", msg.Enable))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		enable := msg.Enable

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetChargingEnabledResponse, error) {
			return state.setChargingEnabled(enable)
		}),
			mapTaskResult[domain.SetChargingEnabledResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetChargingEnabledResponse{
					ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(writeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case *actor.Stopping:
		state.device.Close()
	default:
		state.logger.Debug("evse@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *EVSEActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("evse@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.device.Close()
	default:
		state.logger.Debug("evse@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *EVSEActor) getChargerData() (*domain.GetChargerDataResponse, error) {
	data, err := a.device.ReadAllData()
	if err != nil {
		a.logger.Error("charger data read failed", zap.Error(err))
		return nil, err
	}
	var consumption float64
	if data.Available {
		consumption = emh1_modbus.CalculateConsumption(data.Currents, 0)
	}
	return &domain.GetChargerDataResponse{
		Data:            data,
		ConsumptionWatt: consumption,
	}, nil
}

func (a *EVSEActor) getChargerInfo() (*domain.GetChargerInfoResponse, error) {
	identity, err := a.device.ReadIdentity()
	if err != nil {
		a.logger.Error("charger identity read failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetChargerInfoResponse{
		Identity: identity,
	}, nil
}

func (a *EVSEActor) getDutyCycle() (*domain.GetDutyCycleResponse, error) {
	duty, err := a.device.ReadDutyCycle()
	if err != nil {
		a.logger.Error("duty cycle read failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetDutyCycleResponse{
		DutyCyclePercent: duty,
	}, nil
}

func (a *EVSEActor) wakeUp() (*domain.WakeUpResponse, error) {
	if err := a.device.WakeUp(); err != nil {
		a.logger.Error("wake-up failed", zap.Error(err))
		return nil, err
	}
	return &domain.WakeUpResponse{}, nil
}

func (a *EVSEActor) setChargeCurrent(amps uint8) (*domain.SetChargeCurrentResponse, error) {
	// an idle charger drops the first request, wake it before writing
	if err := a.device.WakeUp(); err != nil {
		return nil, err
	}
	if err := a.device.WriteCurrent(amps); err != nil {
		a.logger.Error("charge current write failed", zap.Uint8("amps", amps), zap.Error(err))
		return nil, err
	}
	return &domain.SetChargeCurrentResponse{
		Amps: amps,
	}, nil
}

func (a *EVSEActor) setChargingEnabled(enable bool) (*domain.SetChargingEnabledResponse, error) {
	if err := a.device.WakeUp(); err != nil {
		return nil, err
	}
	var err error
	if enable {
		err = a.device.EnableCharging()
	} else {
		err = a.device.DisableCharging()
	}
	if err != nil {
		a.logger.Error("charging control write failed", zap.Bool("enable", enable), zap.Error(err))
		return nil, err
	}
	return &domain.SetChargingEnabledResponse{
		Enabled: enable,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
