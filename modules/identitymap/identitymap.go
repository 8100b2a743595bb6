// Package identitymap is a bundled example module: it subscribes to
// messages carrying a "mac_address" property, looks the MAC up in a
// configured table, and republishes an enriched message carrying the
// matching "device_id" property. Messages are immutable, so enrichment
// builds a new Message with the merged property set rather than mutating
// the one it received, and publishes it on a separate output topic.
package identitymap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kartikbazzad/edgegateway/internal/broker"
	"github.com/kartikbazzad/edgegateway/internal/loader"
	"github.com/kartikbazzad/edgegateway/internal/message"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

// StaticName is the name this module registers under.
const StaticName = "modules/identitymap"

// Config declares the broker endpoint to operate on and the static
// MAC-address-to-device-ID table, corresponding to the original's
// IDENTITY_MAP_CONFIG array (one macAddress/deviceId pair per array
// element).
type Config struct {
	Address     string            `json:"address"`
	InputTopic  string            `json:"input_topic"`
	OutputTopic string            `json:"output_topic"`
	Mappings    map[string]string `json:"mappings"`
}

type instance struct {
	sub         *broker.SubscriberHandle
	pub         *broker.PublisherHandle
	outputTopic string
	mappings    map[string]string
}

func init() {
	loader.RegisterStatic(StaticName, func() *module.Capabilities {
		return &module.Capabilities{Create: create, Destroy: destroy}
	})
}

func create(raw json.RawMessage) (module.Handle, error) {
	cfg := Config{
		Address:     "inproc://identitymap",
		InputTopic:  "telemetry.",
		OutputTopic: "identity.mapped",
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("identitymap: parse config: %w", err)
		}
	}

	normalized := make(map[string]string, len(cfg.Mappings))
	for mac, deviceID := range cfg.Mappings {
		normalized[strings.ToUpper(mac)] = deviceID
	}

	log := obslog.Default().With("module", StaticName)
	pub, err := broker.PublisherCreate(cfg.Address, log)
	if err != nil {
		return nil, fmt.Errorf("identitymap: create publisher: %w", err)
	}
	sub, err := broker.SubscriberCreate(cfg.Address, log)
	if err != nil {
		_ = pub.Destroy()
		return nil, fmt.Errorf("identitymap: create subscriber: %w", err)
	}

	inst := &instance{sub: sub, pub: pub, outputTopic: cfg.OutputTopic, mappings: normalized}
	if err := sub.Subscribe(cfg.InputTopic, inst.onMessage, nil); err != nil {
		_ = sub.Destroy()
		_ = pub.Destroy()
		return nil, fmt.Errorf("identitymap: subscribe: %w", err)
	}
	return inst, nil
}

func (inst *instance) onMessage(msg *message.Message, context any) {
	defer msg.Destroy()

	mac, ok := msg.Properties()["mac_address"]
	if !ok {
		return
	}
	deviceID, ok := inst.mappings[strings.ToUpper(mac)]
	if !ok {
		return
	}

	props := make(map[string]string, len(msg.Properties())+1)
	for k, v := range msg.Properties() {
		props[k] = v
	}
	props["device_id"] = deviceID

	enriched, err := message.Create(msg.Content(), props)
	if err != nil {
		return
	}
	defer enriched.Destroy()
	_ = inst.pub.Publish(inst.outputTopic, enriched, 0)
}

func destroy(h module.Handle) {
	inst, ok := h.(*instance)
	if !ok {
		return
	}
	_ = inst.sub.Destroy()
	_ = inst.pub.Destroy()
}
