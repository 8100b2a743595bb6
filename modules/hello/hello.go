// Package hello is a bundled example module: it owns a broker publisher
// and periodically emits a greeting message on a ticker, joined
// synchronously from Destroy so no goroutine outlives the module instance.
package hello

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kartikbazzad/edgegateway/internal/broker"
	"github.com/kartikbazzad/edgegateway/internal/loader"
	"github.com/kartikbazzad/edgegateway/internal/message"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

// StaticName is the name this module registers under for
// loader.RegisterStatic/LoadStatic.
const StaticName = "modules/hello"

// Config is the module's JSON configuration, mirroring hello_world.c's
// hard-coded TOPIC_NAME/TOPIC_ADDRESS/HELLOWORLD_MESSAGE as configurable
// fields instead of compile-time constants.
type Config struct {
	Address  string `json:"address"`
	Topic    string `json:"topic"`
	Greeting string `json:"greeting"`
	Interval string `json:"interval"`
}

type instance struct {
	pub   *broker.PublisherHandle
	topic string
	greet string
	stop  chan struct{}
	wg    sync.WaitGroup
}

func init() {
	loader.RegisterStatic(StaticName, func() *module.Capabilities {
		return &module.Capabilities{Create: create, Destroy: destroy}
	})
}

func create(raw json.RawMessage) (module.Handle, error) {
	cfg := Config{
		Address:  "inproc://hello",
		Topic:    "hello",
		Greeting: "hello world",
		Interval: "5s",
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("hello: parse config: %w", err)
		}
	}
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("hello: parse interval: %w", err)
	}

	pub, err := broker.PublisherCreate(cfg.Address, obslog.Default().With("module", StaticName))
	if err != nil {
		return nil, fmt.Errorf("hello: create publisher: %w", err)
	}

	inst := &instance{pub: pub, topic: cfg.Topic, greet: cfg.Greeting, stop: make(chan struct{})}
	inst.wg.Add(1)
	go inst.run(interval)
	return inst, nil
}

func (inst *instance) run(interval time.Duration) {
	defer inst.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-inst.stop:
			return
		case <-ticker.C:
			msg, err := message.Create([]byte(inst.greet), map[string]string{
				"source": StaticName,
			})
			if err != nil {
				continue
			}
			_ = inst.pub.Publish(inst.topic, msg, 0)
			msg.Destroy()
		}
	}
}

func destroy(h module.Handle) {
	inst, ok := h.(*instance)
	if !ok {
		return
	}
	close(inst.stop)
	inst.wg.Wait()
	_ = inst.pub.Destroy()
}
