package fn

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/point"
)

// Sink receives points forwarded by Export and SqlMetric nodes. Send must
// not block; a full or closed sink returns an error.
type Sink interface {
	Send(p point.Point) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(p point.Point) error

// Send implements Sink.
func (f SinkFunc) Send(p point.Point) error { return f(p) }

// Sinks resolves destination names at send time.
type Sinks interface {
	Sink(name string) (Sink, bool)
}

// SinkMap is a fixed set of named sinks.
type SinkMap map[string]Sink

// Sink implements Sinks.
func (m SinkMap) Sink(name string) (Sink, bool) {
	s, ok := m[name]
	return s, ok
}

// ExportEvent describes one send attempt.
type ExportEvent struct {
	Destination string
	Point       point.Point
	Err         error
}

// forwarder sends to a named destination and logs failures at most once
// per interval.
type forwarder struct {
	dest    string
	sinks   Sinks
	logger  *slog.Logger
	limiter *rate.Limiter
	hook    func(ExportEvent)
	dropped int
}

const sinkErrorLogInterval = 10 * time.Second

func newForwarder(b *Builder, dest string) *forwarder {
	return &forwarder{
		dest:    dest,
		sinks:   b.sinks,
		logger:  b.logger,
		limiter: rate.NewLimiter(rate.Every(sinkErrorLogInterval), 1),
		hook:    b.exportHook,
	}
}

func (f *forwarder) send(label string, p point.Point) {
	var err error
	if f.sinks == nil {
		err = fmt.Errorf("%w: no sinks configured", errors.ErrSinkUnavailable)
	} else if sink, ok := f.sinks.Sink(f.dest); !ok {
		err = fmt.Errorf("%w: unknown destination %s", errors.ErrSinkUnavailable, f.dest)
	} else {
		err = sink.Send(p)
	}

	if f.hook != nil {
		f.hook(ExportEvent{Destination: f.dest, Point: p, Err: err})
	}
	if err == nil {
		return
	}
	f.dropped++
	if f.limiter.Allow() {
		f.logger.Warn("Failed to send point",
			"node", label,
			"destination", f.dest,
			"point", p.Name,
			"dropped", f.dropped,
			"error", err)
		f.dropped = 0
	}
}

// exportNode forwards a retagged copy of its input to a destination while
// the optional gate is truthy and always returns the input unchanged.
type exportNode struct {
	base
	input       NodeID
	gate        NodeID
	conf        *point.Config
	txID        int
	changesOnly bool
	fwd         *forwarder
	last        point.Point
	sent        bool
}

func (n *exportNode) Inputs() []NodeID { return inputs(n.input, n.gate) }

func (n *exportNode) Out(ev *Eval) (point.Point, bool, error) {
	enabled := true
	gate, present, ok, err := ev.pullOptional(n.gate)
	if err != nil {
		return point.Point{}, false, err
	}
	if present {
		if !ok {
			return point.Point{}, false, nil
		}
		enabled = gate.Truthy()
	}

	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	if !enabled {
		return p, true, nil
	}

	out := p
	if n.conf != nil {
		out = n.conf.Retype(p)
	}
	out = out.WithTxID(n.txID)
	if n.changesOnly && n.sent && n.last.Equal(out) {
		return p, true, nil
	}
	n.fwd.send(n.label(), out)
	n.last, n.sent = out, true
	return p, true, nil
}

func (n *exportNode) Reset() {
	n.last, n.sent = point.Point{}, false
}

func buildExport(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	gate, err := c.input("enable")
	if err != nil {
		return nil, err
	}
	if gate == NoNode {
		if gate, err = c.input("pass"); err != nil {
			return nil, err
		}
	}

	dest, ok := c.option("send-to")
	if !ok || dest == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s requires send-to", errors.ErrMissingOption, c.kind),
			"fn", "build", c.kind)
	}

	conf, err := exportConf(c)
	if err != nil {
		return nil, err
	}

	changesOnly, err := c.flag("changes-only", false)
	if err != nil {
		return nil, err
	}

	return &exportNode{
		base:        c.base(),
		input:       in,
		gate:        gate,
		conf:        conf,
		txID:        c.b.txID,
		changesOnly: changesOnly,
		fwd:         newForwarder(c.b, dest),
	}, nil
}

// exportConf resolves the point an Export node retags its input as: either
// a declared "conf point Name:" input, named relative to the task unless
// absolute, or a "conf: /path" reference into the catalog.
func exportConf(c *call) (*point.Config, error) {
	if decl, ok := c.conf.Input("conf"); ok {
		if decl.Kind != fnconfig.KindPoint || !decl.Typed {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s conf must declare a typed point", errors.ErrInvalidConfig, c.kind),
				"fn", "build", c.kind)
		}
		name := decl.Name
		if !strings.HasPrefix(name, "/") {
			name = point.JoinName(c.b.task, name)
		}
		pc := point.Config{Name: name, Type: decl.Type}
		if opt, ok := decl.Option("comment"); ok {
			pc.Comment = opt.Value
		}
		return &pc, nil
	}

	name, ok := c.option("conf")
	if !ok || name == "" {
		return nil, nil
	}
	if c.b.catalog == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s conf %s needs a point catalog", errors.ErrMissingConfig, c.kind, name),
			"fn", "build", c.kind)
	}
	pc, found := c.b.catalog.Get(name)
	if !found {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrPointNotFound, name), "fn", "build", c.kind)
	}
	return &pc, nil
}
