package meter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xn--nding-jua/mqtt2victron/pkg/vedbus"

	"go.uber.org/zap"
)

// Coordinator runs the reconciliation pass for one meter: measurement
// event in, field store updated, derivation applied, service model
// written, update index bumped. It is not safe for concurrent use; the
// owning actor serializes passes through its mailbox.
type Coordinator struct {
	id      string
	prefix  string
	routes  map[string]Route
	deriver Deriver
	store   *FieldStore
	service *vedbus.Service
	logger  *zap.Logger

	lastUpdate time.Time
	passes     uint64
}

func NewCoordinator(id, prefix string, routes map[string]Route, deriver Deriver, service *vedbus.Service, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		id:      id,
		prefix:  prefix,
		routes:  routes,
		deriver: deriver,
		store:   NewFieldStore(),
		service: service,
		logger:  logger,
	}
}

func (c *Coordinator) ID() string {
	return c.id
}

func (c *Coordinator) Service() *vedbus.Service {
	return c.service
}

// TopicPrefix is the subscription prefix; events for this meter arrive
// on <prefix>/<suffix>.
func (c *Coordinator) TopicPrefix() string {
	return c.prefix
}

// LastUpdate is the wall time of the last completed pass, zero until
// the first one.
func (c *Coordinator) LastUpdate() time.Time {
	return c.lastUpdate
}

// Passes counts completed passes since start.
func (c *Coordinator) Passes() uint64 {
	return c.passes
}

// HandleMessage processes one measurement event. Unknown suffixes are
// ignored without running a pass. A payload that does not parse as a
// number aborts the pass with no state change and no index bump; the
// error is returned for logging and the service keeps running.
func (c *Coordinator) HandleMessage(topic string, payload []byte) error {
	suffix, ok := strings.CutPrefix(topic, c.prefix)
	if !ok {
		return nil
	}
	route, ok := c.routes[suffix]
	if !ok {
		c.logger.Debug("ignoring unknown topic", zap.String("topic", topic))
		return nil
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return fmt.Errorf("parse payload %q on %s: %w", payload, topic, err)
	}

	route(c.store, value)
	c.publish()

	c.lastUpdate = time.Now()
	c.passes++
	return nil
}

// publish writes every derivable exposed value and bumps the update
// index mod 256 so consumers can detect fresh data.
func (c *Coordinator) publish() {
	for _, u := range c.deriver.Derive(c.store) {
		if u.OnlyIfChanged {
			if cur, err := c.service.Get(u.Path); err == nil && cur == u.Value {
				continue
			}
		}
		if err := c.service.Set(u.Path, u.Value); err != nil {
			c.logger.Error("write exposed value", zap.String("path", u.Path), zap.Error(err))
		}
	}

	index, err := c.service.GetInt(UpdateIndexPath)
	if err != nil {
		c.logger.Error("read update index", zap.Error(err))
		return
	}
	index++
	if index > 255 {
		index = 0
	}
	if err := c.service.Set(UpdateIndexPath, index); err != nil {
		c.logger.Error("write update index", zap.Error(err))
	}
}
