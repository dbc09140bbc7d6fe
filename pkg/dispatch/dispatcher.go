// Package dispatch routes inbound chat events to handlers. It owns the
// access guard, the read-through cache of probe results and the table of
// actions waiting for confirmation.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/homepanel/homepanel/internal/metrics"
	"github.com/homepanel/homepanel/pkg/cache"
	"github.com/homepanel/homepanel/pkg/commands"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/types"
	"go.uber.org/zap"
)

// View is what a handler renders: HTML text plus an inline keyboard
type View struct {
	Text    string
	Buttons [][]types.Button

	// set when the callback was already answered by an early reply
	acknowledged bool
}

type handlerFunc func(ctx context.Context, ev types.InboundEvent) (View, error)

// Dispatcher handles events one at a time. Handle must be called from a
// single goroutine.
type Dispatcher struct {
	guard    *Guard
	cache    *cache.Cache
	probes   probes.Set
	actions  *commands.Registry
	confirms *confirmations
	handlers map[string]handlerFunc
	logger   *zap.Logger

	ttl            time.Duration
	confirmTimeout time.Duration
	now            func() time.Time
	serverHost     string
	energyCost     float64
	currency       string
	early          func(ctx context.Context, r types.Reply) error

	// only touched by the worker goroutine
	lastEventID int64
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithCache replaces the default cache
func WithCache(c *cache.Cache) Option {
	return func(d *Dispatcher) {
		d.cache = c
	}
}

// WithTTL sets how long probe results are served from the cache
func WithTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.ttl = ttl
	}
}

// WithConfirmTimeout sets the confirmation window
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.confirmTimeout = timeout
	}
}

// WithClock replaces time.Now for the confirmation table
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithServerHost sets the host used for container Web UI links
func WithServerHost(host string) Option {
	return func(d *Dispatcher) {
		d.serverHost = host
	}
}

// WithEnergyPrice sets the cost per kWh shown in the power view
func WithEnergyPrice(cost float64, currency string) Option {
	return func(d *Dispatcher) {
		d.energyCost = cost
		d.currency = currency
	}
}

// WithEarlyReply sets how replies that must go out before a handler
// finishes are sent, such as the acknowledgement of a reboot.
func WithEarlyReply(send func(ctx context.Context, r types.Reply) error) Option {
	return func(d *Dispatcher) {
		d.early = send
	}
}

// New creates a dispatcher. A nil registry disables every privileged action.
func New(guard *Guard, set probes.Set, actions *commands.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		guard:          guard,
		probes:         set,
		actions:        actions,
		ttl:            cache.DefaultTTL,
		confirmTimeout: DefaultConfirmTimeout,
		now:            time.Now,
		currency:       "€",
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.logger = d.logger.Named("dispatch")
	if d.cache == nil {
		d.cache = cache.New()
	}
	if d.actions == nil {
		d.actions = commands.NewRegistry()
	}
	d.confirms = newConfirmations(d.confirmTimeout, d.now)
	d.handlers = d.routes()
	return d
}

// Handle processes one event and returns the replies to send. Events from
// anyone but the admin, and redelivered events, produce no reply.
func (d *Dispatcher) Handle(ctx context.Context, ev types.InboundEvent) []types.Reply {
	if !d.guard.Allow(ev.SenderID) {
		return nil
	}

	if ev.ID != 0 {
		if ev.ID <= d.lastEventID {
			d.logger.Debug("duplicate event dropped", zap.Int64("event_id", ev.ID), zap.Int64("last_event_id", d.lastEventID))
			return nil
		}
		d.lastEventID = ev.ID
	}

	key, arg := commandKey(ev)
	ev.Args = arg

	h, ok := d.handlers[key]
	if !ok {
		d.logger.Debug("unknown command", zap.String("command", key))
		metrics.CommandsHandled.WithLabelValues("unknown", "help").Inc()
		return []types.Reply{d.reply(ev, helpView())}
	}

	view, err := d.invoke(ctx, key, h, ev)
	if err != nil {
		d.logger.Error("command failed", zap.String("command", key), zap.Error(err))
		metrics.CommandsHandled.WithLabelValues(key, "error").Inc()
		view = errorView(err)
	} else {
		metrics.CommandsHandled.WithLabelValues(key, "ok").Inc()
	}
	return []types.Reply{d.reply(ev, view)}
}

// invoke runs h and turns a panic into an error
func (d *Dispatcher) invoke(ctx context.Context, key string, h handlerFunc, ev types.InboundEvent) (view View, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("command", key),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			metrics.CommandsHandled.WithLabelValues(key, "panic").Inc()
			err = fmt.Errorf("internal error in %s", key)
		}
	}()
	return h(ctx, ev)
}

func (d *Dispatcher) reply(ev types.InboundEvent, view View) types.Reply {
	r := types.Reply{
		ChatID:  ev.ChatID,
		Text:    view.Text,
		Buttons: view.Buttons,
	}
	if ev.IsCallback() {
		r.EditMessageID = ev.MessageID
		if !view.acknowledged {
			r.AnswerCallbackID = ev.CallbackID
		}
	}
	return r
}

// commandKey returns the lookup key and argument for an event. Callback
// data has the form key or key:arg.
func commandKey(ev types.InboundEvent) (string, string) {
	if ev.IsCallback() {
		key, arg, _ := strings.Cut(ev.Callback, ":")
		return key, arg
	}
	return strings.ToLower(strings.TrimPrefix(ev.Command, "/")), ev.Args
}

// Commands lists the entries registered in the chat client's command menu
func (d *Dispatcher) Commands() []types.BotCommand {
	cmds := []types.BotCommand{
		{Command: "start", Description: "Dashboard and menu"},
		{Command: "status", Description: "System status"},
		{Command: "temp", Description: "Temperatures"},
	}
	if d.probes.Power != nil {
		cmds = append(cmds, types.BotCommand{Command: "power", Description: "Power usage"})
	}
	if d.probes.Containers != nil {
		cmds = append(cmds, types.BotCommand{Command: "containers", Description: "Containers"})
	}
	if d.probes.Torrents != nil {
		cmds = append(cmds, types.BotCommand{Command: "torrents", Description: "qBittorrent status"})
	}
	if d.probes.Network != nil {
		cmds = append(cmds, types.BotCommand{Command: "network", Description: "Network addresses"})
	}
	if d.probes.Logins != nil {
		cmds = append(cmds, types.BotCommand{Command: "logins", Description: "Recent SSH logins"})
	}
	if d.probes.Processes != nil {
		cmds = append(cmds, types.BotCommand{Command: "processes", Description: "Top processes"})
	}
	if d.probes.Updates != nil {
		cmds = append(cmds, types.BotCommand{Command: "updates", Description: "Pending package updates"})
	}
	return append(cmds, types.BotCommand{Command: "help", Description: "Show help"})
}
