package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/matfroh/abl-emh1-modbus/internal/config"
	"github.com/matfroh/abl-emh1-modbus/internal/core/domain"
	"github.com/matfroh/abl-emh1-modbus/internal/core/events"
	. "github.com/matfroh/abl-emh1-modbus/internal/util/actorutil"
	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const controlRequestTimeout = 15 * time.Second

// MonitorActor drives the periodic state polls against the EVSE actor,
// turns the readings into sensor update events and orchestrates control
// writes coming from MQTT commands.
type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	evseActor   *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream

	cron       quartz.Scheduler
	cronCancel context.CancelFunc

	currentDutyCount uint
	dutyCount        uint

	logger *zap.Logger
}

type monitorTick struct {
}

type identityRefreshTick struct {
}

func NewMonitorActor(config *config.Config, evseActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *MonitorActor {
	act := &MonitorActor{
		config:           config,
		evseActor:        evseActor,
		behavior:         actor.NewBehavior(),
		stash:            &Stash{},
		logger:           ActorLogger(domain.ACTOR_ID_MONITOR, logger),
		eventStream:      eventStream,
		currentDutyCount: 2,
		dutyCount:        2,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@starting started")

		if state.config.MonitorConfig.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), monitorTick{})
		}
		if err := state.startIdentityRefreshCron(ctx); err != nil {
			state.logger.Error("monitor@starting identity refresh cron", zap.Error(err))
		}

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, domain.GetChargerInfoRequest{}, controlRequestTimeout), func(err error) any {
			return domain.GetChargerInfoResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.Become(state.WaitingInfoReceive)
	case *actor.Restarting:
		state.stopCron()
	default:
		state.logger.Debug("monitor@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   "idle",
		})
	case monitorTick:
		state.logger.Debug("monitor@default tick")
		// the duty cycle moves slowly, poll it every few ticks
		if state.currentDutyCount == state.dutyCount {
			state.currentDutyCount = 0
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, domain.GetDutyCycleRequest{}, controlRequestTimeout), func(err error) any {
				return domain.GetDutyCycleResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				}
			})
		} else {
			state.currentDutyCount++
		}

		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), monitorTick{})
		// get charger state and currents
		state.requestChargerData(ctx)
	case identityRefreshTick:
		state.logger.Debug("monitor@default identity refresh tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, domain.GetChargerInfoRequest{}, controlRequestTimeout), func(err error) any {
			return domain.GetChargerInfoResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.GetDutyCycleResponse:
		state.logger.Debug("monitor@default GetDutyCycleResponse")
		if !msg.HasResponseError() {
			evs := events.DutyCycleToUpdateEvents(msg.DutyCyclePercent)
			for _, ev := range evs {
				state.eventStream.Publish(ev)
			}
		}
	case domain.GetChargerInfoResponse:
		state.logger.Debug("monitor@default GetChargerInfoResponse")
		if !msg.HasResponseError() {
			evs := events.ChargerIdentityToUpdateEvents(msg.Identity)
			for _, ev := range evs {
				state.eventStream.Publish(ev)
			}
		}
	case domain.SetChargingEnabledRequest:
		state.logger.Debug("monitor@default SetChargingEnabledRequest", zap.Bool("enable", msg.Enable))
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, msg, controlRequestTimeout), func(err error) any {
			return domain.SetChargingEnabledResponse{
				ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingControlReceive)
	case domain.SetChargeCurrentRequest:
		state.logger.Debug("monitor@default SetChargeCurrentRequest", zap.Uint8("amps", msg.Amps))
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, msg, controlRequestTimeout), func(err error) any {
			return domain.SetChargeCurrentResponse{
				ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingControlReceive)
	case *actor.Stopping:
		state.stopCron()
	default:
		state.logger.Debug("monitor@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) WaitingDataReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetChargerDataResponse:
		if msg.HasResponseError() {
			state.logger.Error("monitor@waiting GetChargerDataResponse error", zap.Error(msg.GetResponseError()))
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("monitor@waiting GetChargerDataResponse")
		if msg.Data != nil {
			evs := events.ChargerDataToUpdateEvents(msg.Data, msg.ConsumptionWatt)
			for _, ev := range evs {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.stopCron()
	default:
		state.logger.Debug("monitor@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) WaitingControlReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SetChargingEnabledResponse:
		state.behavior.UnbecomeStacked()
		if msg.HasResponseError() {
			state.logger.Error("monitor@waitingControl SetChargingEnabledResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Info("charging switched", zap.Bool("enabled", msg.Enabled))
			state.eventStream.Publish(events.ChargingSwitchUpdateEvent(msg.Enabled))
			// refresh sensors right away instead of waiting for the next tick
			state.requestChargerData(ctx)
		}
		state.stash.UnstashAll(ctx)
	case domain.SetChargeCurrentResponse:
		state.behavior.UnbecomeStacked()
		if msg.HasResponseError() {
			state.logger.Error("monitor@waitingControl SetChargeCurrentResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Info("charge current set", zap.Uint8("amps", msg.Amps))
			if msg.Amps >= emh1_modbus.MinCurrentAmps {
				state.eventStream.Publish(events.ChargeCurrentUpdateEvent(msg.Amps))
			}
			// amps == 0 turns the outlet off
			if msg.Amps == 0 {
				state.eventStream.Publish(events.ChargingSwitchUpdateEvent(false))
			}
			state.requestChargerData(ctx)
		}
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.stopCron()
	default:
		state.logger.Debug("monitor@waitingControl: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetChargerInfoResponse:
		if msg.HasResponseError() {
			state.logger.Error("monitor@waitingInfo GetChargerInfoResponse", zap.Error(msg.GetResponseError()))
			state.behavior.Become(state.DefaultReceive)
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("monitor@waitingInfo GetChargerInfoResponse")
		evs := events.ChargerIdentityToUpdateEvents(msg.Identity)
		for _, ev := range evs {
			state.eventStream.Publish(ev)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("monitor@waitingInfo: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) requestChargerData(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.evseActor, domain.GetChargerDataRequest{}, controlRequestTimeout), func(err error) any {
		return domain.GetChargerDataResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.BecomeStacked(state.WaitingDataReceive)
}

func (state *MonitorActor) pollInterval() time.Duration {
	return time.Duration(state.config.MonitorConfig.PollIntervalMillis) * time.Millisecond
}

func (state *MonitorActor) startIdentityRefreshCron(ctx actor.Context) error {
	expr := state.config.MonitorConfig.IdentityRefreshCron
	if expr == "" {
		return nil
	}
	trigger, err := quartz.NewCronTrigger(expr)
	if err != nil {
		return err
	}
	system := ctx.ActorSystem()
	self := ctx.Self()
	refreshJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		system.Root.Send(self, identityRefreshTick{})
		return true, nil
	})

	cronCtx, cancel := context.WithCancel(context.Background())
	state.cron = quartz.NewStdScheduler()
	state.cronCancel = cancel
	state.cron.Start(cronCtx)
	return state.cron.ScheduleJob(
		quartz.NewJobDetail(refreshJob, quartz.NewJobKey("identity_refresh")),
		trigger)
}

func (state *MonitorActor) stopCron() {
	if state.cron != nil {
		state.cron.Stop()
		state.cronCancel()
		state.cron = nil
	}
}
