package fn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/pkg/timestamp"
	"github.com/c360/fr-service/point"
)

// sqlMetricNode renders an SQL template from its named inputs. The template
// may reference {table}, {id} and, for every input name, {name},
// {name.value}, {name.name}, {name.timestamp} and {name.status}.
type sqlMetricNode struct {
	base
	names  []string
	inputs []NodeID
	sql    string
	table  string
	id     string
	name   string
	fwd    *forwarder
}

func (n *sqlMetricNode) Inputs() []NodeID { return n.inputs }

func (n *sqlMetricNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll(n.inputs)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}

	pairs := make([]string, 0, 4+len(values)*10)
	pairs = append(pairs, "{table}", n.table, "{id}", n.id)
	status := point.StatusOk
	for i, v := range values {
		name := n.names[i]
		pairs = append(pairs,
			"{"+name+"}", v.FormatValue(),
			"{"+name+".value}", v.FormatValue(),
			"{"+name+".name}", v.Name,
			"{"+name+".timestamp}", timestamp.Format(v.Timestamp),
			"{"+name+".status}", strconv.Itoa(int(v.Status)),
		)
		if v.Status != point.StatusOk {
			status = point.StatusInvalid
		}
	}
	sql := strings.NewReplacer(pairs...).Replace(n.sql)

	out := point.NewString(n.name, sql).WithStatus(status)
	if n.fwd != nil {
		n.fwd.send(n.label(), out)
	}
	return out, true, nil
}

func (n *sqlMetricNode) Reset() {}

func buildSQLMetric(c *call) (Node, error) {
	sql, ok := c.option("sql")
	if !ok || sql == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s requires sql", errors.ErrMissingOption, c.kind),
			"fn", "build", c.kind)
	}
	table, _ := c.option("table")

	names, ids, err := c.named()
	if err != nil {
		return nil, err
	}

	b := c.base()
	id, ok := c.option("id")
	if !ok || id == "" {
		id = strconv.Itoa(int(b.id))
	}
	node := &sqlMetricNode{
		base:   b,
		names:  names,
		inputs: ids,
		sql:    sql,
		table:  table,
		id:     id,
		name:   point.JoinName(c.b.task, id),
	}
	if dest, ok := c.option("send-to"); ok && dest != "" {
		node.fwd = newForwarder(c.b, dest)
	}
	return node, nil
}
