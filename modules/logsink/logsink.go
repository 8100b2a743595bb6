// Package logsink is a bundled example module: it subscribes to a broker
// topic and appends one JSON line per received message to a file,
// newline-delimited so a downstream tool can tail the log rather than
// parse it whole.
package logsink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kartikbazzad/edgegateway/internal/broker"
	"github.com/kartikbazzad/edgegateway/internal/loader"
	"github.com/kartikbazzad/edgegateway/internal/message"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

// StaticName is the name this module registers under.
const StaticName = "modules/logsink"

// Config declares the broker endpoint to tail and the output file path,
// corresponding to the original's LOGGER_CONFIG{ fout, brokerAddress,
// subscription }.
type Config struct {
	Address string `json:"address"`
	Topic   string `json:"topic"`
	Path    string `json:"path"`
}

type logLine struct {
	Time       string            `json:"time"`
	Topic      string            `json:"topic"`
	Content    string            `json:"content"`
	Properties map[string]string `json:"properties,omitempty"`
}

type instance struct {
	sub   *broker.SubscriberHandle
	file  *os.File
	mu    sync.Mutex
	topic string
}

func init() {
	loader.RegisterStatic(StaticName, func() *module.Capabilities {
		return &module.Capabilities{Create: create, Destroy: destroy}
	})
}

func create(raw json.RawMessage) (module.Handle, error) {
	cfg := Config{
		Address: "inproc://logsink",
		Topic:   "",
		Path:    "/tmp/edgegateway-logsink.jsonl",
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("logsink: parse config: %w", err)
		}
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logsink: open %s: %w", cfg.Path, err)
	}

	sub, err := broker.SubscriberCreate(cfg.Address, obslog.Default().With("module", StaticName))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("logsink: create subscriber: %w", err)
	}

	inst := &instance{sub: sub, file: f, topic: cfg.Topic}
	if err := sub.Subscribe(cfg.Topic, inst.onMessage, nil); err != nil {
		_ = sub.Destroy()
		f.Close()
		return nil, fmt.Errorf("logsink: subscribe: %w", err)
	}
	return inst, nil
}

func (inst *instance) onMessage(msg *message.Message, context any) {
	defer msg.Destroy()

	line := logLine{
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Topic:      inst.topic,
		Content:    string(msg.Content()),
		Properties: msg.Properties(),
	}
	encoded, err := json.Marshal(line)
	if err != nil {
		return
	}
	encoded = append(encoded, '\n')

	inst.mu.Lock()
	defer inst.mu.Unlock()
	_, _ = inst.file.Write(encoded)
}

func destroy(h module.Handle) {
	inst, ok := h.(*instance)
	if !ok {
		return
	}
	_ = inst.sub.Destroy()
	inst.mu.Lock()
	_ = inst.file.Close()
	inst.mu.Unlock()
}
