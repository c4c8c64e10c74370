package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gosimple/slug"

	"github.com/nerrad567/lightbridge/internal/command"
	"github.com/nerrad567/lightbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// mirrorQueueSize bounds publications waiting for the broker.
const mirrorQueueSize = 256

// Publisher is the part of the MQTT client the mirror uses.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// ResourceDescriptor is the retained JSON published per resource.
type ResourceDescriptor struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	BridgeID string `json:"bridge_id"`
}

// publication is one queued retained message.
type publication struct {
	topic   string
	payload []byte
}

// MQTTMirror republishes every fan-out as retained MQTT state and accepts
// assignment lists on the command topic.
//
// Topics (prefix defaults to "lightbridge"):
//
//	<prefix>/state/<resource-id>/<property>   retained value text
//	<prefix>/resource/<resource-id>           retained ResourceDescriptor
//	<prefix>/command/<target>                 colon-joined assignments
//
// Thread Safety:
//   - PropertyChanged never blocks; publications are queued and dropped
//     when the broker falls behind.
type MQTTMirror struct {
	d      *Dispatcher
	pub    Publisher
	topics mqtt.Topics
	qos    byte

	queue   chan publication
	dropped atomic.Uint64

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewMQTTMirror creates a mirror for d. Call Start to begin publishing.
func NewMQTTMirror(d *Dispatcher, pub Publisher, topics mqtt.Topics, qos byte) *MQTTMirror {
	return &MQTTMirror{
		d:      d,
		pub:    pub,
		topics: topics,
		qos:    qos,
		queue:  make(chan publication, mirrorQueueSize),
	}
}

// Start subscribes to the command topic, publishes a descriptor for every
// resource, and registers the mirror as a dispatcher observer.
func (m *MQTTMirror) Start(ctx context.Context) error {
	m.ctx, m.ctxCancel = context.WithCancel(ctx)

	if err := m.pub.Subscribe(m.topics.AllCommands(), m.qos, m.handleCommand); err != nil {
		m.ctxCancel()
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	m.wg.Add(1)
	go m.publishLoop()

	m.d.Registry().OnAdded(m.describe)
	for _, res := range m.d.Registry().All() {
		m.describe(res)
	}
	m.d.AddObserver(m)

	m.d.logInfo("mqtt mirror started", "commands", m.topics.AllCommands())
	return nil
}

// Stop unsubscribes and waits for the publisher goroutine.
func (m *MQTTMirror) Stop() {
	m.stopOnce.Do(func() {
		if m.ctxCancel == nil {
			return
		}
		if err := m.pub.Unsubscribe(m.topics.AllCommands()); err != nil {
			m.d.logDebug("mqtt unsubscribe failed", "error", err)
		}
		m.ctxCancel()
		m.wg.Wait()
	})
}

// Dropped returns the number of publications discarded on overflow.
func (m *MQTTMirror) Dropped() uint64 {
	return m.dropped.Load()
}

// PropertyChanged implements Observer.
func (m *MQTTMirror) PropertyChanged(resourceID, property, value string) {
	m.enqueue(m.topics.State(resourceID, property), []byte(value))
}

// describe publishes the retained descriptor of one resource.
func (m *MQTTMirror) describe(res *registry.Resource) {
	payload, err := json.Marshal(ResourceDescriptor{
		ID:       res.ID,
		DeviceID: res.Declaration.ID,
		Name:     res.Name(),
		Slug:     slug.Make(res.Name()),
		BridgeID: m.d.ID(),
	})
	if err != nil {
		m.d.logError("failed to marshal resource descriptor", err)
		return
	}
	m.enqueue(m.topics.Resource(res.ID), payload)
}

func (m *MQTTMirror) enqueue(topic string, payload []byte) {
	select {
	case m.queue <- publication{topic: topic, payload: payload}:
	default:
		m.dropped.Add(1)
	}
}

func (m *MQTTMirror) publishLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case p := <-m.queue:
			if err := m.pub.PublishRetained(p.topic, p.payload); err != nil {
				m.d.logDebug("mqtt publish failed", "topic", p.topic, "error", err)
			}
		}
	}
}

// handleCommand runs a colon-joined assignment list against the target in
// the topic's last segment. It is called on a paho goroutine, so each
// resource is written in the background and the handler returns at once.
func (m *MQTTMirror) handleCommand(topic string, payload []byte) error {
	target := topic[strings.LastIndex(topic, "/")+1:]
	assignments := strings.Split(strings.TrimSpace(string(payload)), ":")

	resources := m.d.Registry().Resolve(target)
	if len(resources) == 0 {
		m.d.logDebug("mqtt command target resolved to nothing", "target", target)
		return nil
	}

	for _, res := range resources {
		started := m.d.spawn(func(ctx context.Context) {
			batch, result := command.Apply(ctx, res.Binding, assignments)
			for _, err := range batch.Dropped {
				m.d.logDebug("assignment dropped", "resource", res.ID, "error", err)
			}
			if !result.OK() {
				m.d.logWarn("mqtt command failed", "resource", res.ID, "outcome", result.Outcome.String(), "error", result.Err)
			}
		})
		if !started {
			m.d.logDebug("mqtt command refused after stop", "resource", res.ID)
			return nil
		}
	}
	return nil
}
