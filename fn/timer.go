package fn

import (
	"time"

	"github.com/c360/fr-service/point"
)

// TimerState is the phase of a Timer node.
type TimerState int

const (
	TimerOff TimerState = iota
	TimerStart
	TimerProgress
	TimerStop
	TimerDone
)

func (s TimerState) String() string {
	switch s {
	case TimerOff:
		return "Off"
	case TimerStart:
		return "Start"
	case TimerProgress:
		return "Progress"
	case TimerStop:
		return "Stop"
	case TimerDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// next returns the state after observing input.
func (s TimerState) next(input, repeat bool) TimerState {
	switch s {
	case TimerOff:
		if input {
			return TimerStart
		}
		return TimerOff
	case TimerStart, TimerProgress:
		if input {
			return TimerProgress
		}
		return TimerStop
	case TimerStop:
		if input {
			return TimerStart
		}
		if repeat {
			return TimerOff
		}
		return TimerDone
	default:
		return TimerDone
	}
}

// timerNode measures, in seconds, how long its input stays truthy. With
// repeat it accumulates over sessions; without it the first completed
// session is final.
type timerNode struct {
	base
	input   NodeID
	initial float64
	repeat  bool
	clock   Clock

	state   TimerState
	start   time.Time
	running bool
	session float64
	total   float64
}

func (n *timerNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *timerNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}

	now := n.clock.Now()
	n.state = n.state.next(running(p), n.repeat)
	switch n.state {
	case TimerStart:
		n.start, n.running, n.session = now, true, 0
	case TimerProgress:
		n.session = now.Sub(n.start).Seconds()
	case TimerStop, TimerDone:
		if n.running {
			n.total += now.Sub(n.start).Seconds()
			n.running = false
		}
		n.session = 0
	}

	out := point.NewDouble(p.Name, n.total+n.session).WithStatus(p.Status).WithTimestamp(now).WithTxID(p.TxID)
	return out, true, nil
}

// running reports whether p keeps a timer going: true for Bool, strictly
// positive for numbers.
func running(p point.Point) bool {
	switch p.Type {
	case point.TypeBool:
		return p.Bool()
	case point.TypeString:
		return p.Truthy()
	default:
		f, _ := p.Float64()
		return f > 0
	}
}

func (n *timerNode) Reset() {
	n.state = TimerOff
	n.start, n.running = time.Time{}, false
	n.session, n.total = 0, n.initial
}

func buildTimer(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	initial, err := c.literalFloat("initial", 0)
	if err != nil {
		return nil, err
	}
	repeat, err := c.flag("repeat", true)
	if err != nil {
		return nil, err
	}
	return &timerNode{
		base:    c.base(),
		input:   in,
		initial: initial,
		repeat:  repeat,
		clock:   c.b.clock,
		total:   initial,
	}, nil
}
