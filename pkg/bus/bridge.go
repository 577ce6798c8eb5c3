package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"avaneesh/dnp3-outstation/pkg/agent"
	"avaneesh/dnp3-outstation/pkg/outstation"
)

const mqttTimeout = 2 * time.Second

// ErrUnknownMethod is returned for calls to a method the agent does not export
var ErrUnknownMethod = errors.New("unknown method")

// Config configures the MQTT connection
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	// Prefix is the root of every topic, e.g. "dnp3/outstation"
	Prefix string
}

// NewClient creates a paho client for cfg; the caller connects it
func NewClient(cfg Config) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			klog.ErrorS(err, "MQTT connection lost", "broker", cfg.Broker)
		})
	return mqtt.NewClient(opts)
}

// Request is the payload of an RPC request
type Request struct {
	ID     string                 `json:"id"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Reply is published on <request topic>/reply
type Reply struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Bridge exposes an agent over MQTT. Requests arrive on <prefix>/rpc/<method>
// and every applied update publishes the database on <prefix>/db.
type Bridge struct {
	client mqtt.Client
	agent  *agent.Agent
	prefix string

	mu      sync.Mutex
	running bool
}

// New creates a bridge; Start subscribes
func New(client mqtt.Client, a *agent.Agent, prefix string) *Bridge {
	return &Bridge{client: client, agent: a, prefix: strings.TrimSuffix(prefix, "/")}
}

func (b *Bridge) rpcTopic() string { return b.prefix + "/rpc/+" }

// DBTopic is where snapshots are published
func (b *Bridge) DBTopic() string { return b.prefix + "/db" }

// Start subscribes to the RPC topics and begins publishing snapshots
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	token := b.client.Subscribe(b.rpcTopic(), 1, b.onMessage)
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("subscribe %s: timeout", b.rpcTopic())
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "subscribe %s", b.rpcTopic())
	}
	b.running = true
	b.agent.OnUpdate(b.publishSnapshot)

	klog.InfoS("MQTT bridge started", "topic", b.rpcTopic())
	return nil
}

// Stop unsubscribes; snapshots are no longer published
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	token := b.client.Unsubscribe(b.rpcTopic())
	if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
		klog.ErrorS(token.Error(), "Failed to unsubscribe", "topic", b.rpcTopic())
	}
}

func (b *Bridge) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	method := topic[strings.LastIndex(topic, "/")+1:]

	var req Request
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		klog.V(3).InfoS("Failed to parse RPC request", "topic", topic, "err", err)
		b.publish(topic+"/reply", Reply{Error: "malformed request: " + err.Error()})
		return
	}

	reply := Reply{ID: req.ID}
	result, err := b.Call(method, req.Params)
	if err != nil {
		klog.V(2).InfoS("RPC failed", "method", method, "id", req.ID, "err", err)
		reply.Error = err.Error()
	} else {
		reply.Result = result
	}
	b.publish(topic+"/reply", reply)
}

func (b *Bridge) publishSnapshot(snap outstation.Snapshot) {
	if b.isRunning() {
		b.publish(b.DBTopic(), snap)
	}
}

func (b *Bridge) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		klog.ErrorS(err, "Failed to marshal MQTT payload", "topic", topic)
		return
	}
	token := b.client.Publish(topic, 1, false, payload)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		klog.V(5).InfoS("Published MQTT", "topic", topic)
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", token.Error())
	}
}

type pointParams struct {
	Val   interface{} `mapstructure:"val"`
	Index uint16      `mapstructure:"index"`
}

// Call invokes one agent method by its RPC name
func (b *Bridge) Call(method string, params map[string]interface{}) (interface{}, error) {
	switch method {
	case "rpc_dummy":
		return b.agent.RPCDummy(), nil
	case "reset_outstation":
		return nil, b.agent.ResetOutstation()
	case "display_outstation_db":
		return b.agent.DisplayOutstationDB(), nil
	case "get_outstation_config":
		return b.agent.GetOutstationConfig(), nil
	case "is_outstation_connected":
		return b.agent.IsOutstationConnected(), nil
	case "update_outstation":
		var p agent.UpdateParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return nil, b.agent.UpdateOutstation(p)
	case "apply_update_analog_input", "apply_update_analog_output":
		var p pointParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		val, ok := p.Val.(float64)
		if !ok {
			return nil, errors.Errorf("val should be a number, got %T", p.Val)
		}
		if method == "apply_update_analog_input" {
			return b.agent.ApplyUpdateAnalogInput(val, p.Index)
		}
		return b.agent.ApplyUpdateAnalogOutput(val, p.Index)
	case "apply_update_binary_input", "apply_update_binary_output":
		var p pointParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		val, ok := p.Val.(bool)
		if !ok {
			return nil, errors.Errorf("val should be a bool, got %T", p.Val)
		}
		if method == "apply_update_binary_input" {
			return b.agent.ApplyUpdateBinaryInput(val, p.Index)
		}
		return b.agent.ApplyUpdateBinaryOutput(val, p.Index)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
}

func decodeParams(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decoder.Decode(params), "invalid params")
}
