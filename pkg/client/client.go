// Package client is a Go client for the gateway's admin API
// (internal/adminapi): a connect-on-demand Unix socket dial, a
// mutex-guarded request ID counter, and a length-prefixed request/response
// round trip for ListModules/AddModule/RemoveModule/BrokerStats.
package client

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/kartikbazzad/edgegateway/internal/adminapi"
)

// Client communicates with the gateway's admin API via Unix socket.
type Client struct {
	socketPath string
	conn       net.Conn
	mu         sync.Mutex
	requestID  uint64
}

// New creates a new admin API client for socketPath.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath, requestID: 1}
}

// Connect establishes the underlying Unix socket connection, if not already
// connected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("edgegateway: connect: %w", err)
	}
	c.conn = conn
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) writeFrame(data []byte) error {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := c.conn.Write(lenBuf); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *Client) readFrame() ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > adminapi.MaxFrameSize {
		return nil, fmt.Errorf("edgegateway: response frame too large: %d", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) sendRequest(command uint8, payload []byte) (uint8, []byte, error) {
	if err := c.Connect(); err != nil {
		return 0, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reqID := c.requestID
	c.requestID++

	buf, err := adminapi.EncodeRequest(&adminapi.RequestFrame{RequestID: reqID, Command: command, Payload: payload})
	if err != nil {
		return 0, nil, fmt.Errorf("edgegateway: encode request: %w", err)
	}
	if err := c.writeFrame(buf); err != nil {
		return 0, nil, fmt.Errorf("edgegateway: write request: %w", err)
	}

	respData, err := c.readFrame()
	if err != nil {
		return 0, nil, fmt.Errorf("edgegateway: read response: %w", err)
	}
	resp, err := adminapi.DecodeResponse(respData)
	if err != nil {
		return 0, nil, fmt.Errorf("edgegateway: decode response: %w", err)
	}
	return resp.Status, resp.Payload, nil
}

func decodeError(payload []byte) error {
	var v struct {
		Error string `json:"error"`
	}
	if len(payload) > 0 && json.Unmarshal(payload, &v) == nil && v.Error != "" {
		return fmt.Errorf("edgegateway: %s", v.Error)
	}
	return fmt.Errorf("edgegateway: request failed")
}

// ListModules returns every currently loaded module instance.
func (c *Client) ListModules() ([]adminapi.ModuleInfo, error) {
	status, payload, err := c.sendRequest(adminapi.CmdListModules, nil)
	if err != nil {
		return nil, err
	}
	if status != adminapi.StatusOK {
		return nil, decodeError(payload)
	}
	var modules []adminapi.ModuleInfo
	if err := json.Unmarshal(payload, &modules); err != nil {
		return nil, fmt.Errorf("edgegateway: decode list modules: %w", err)
	}
	return modules, nil
}

// AddModule loads modulePath with the given configuration and returns its
// new handle ID.
func (c *Client) AddModule(modulePath string, config json.RawMessage) (string, error) {
	payload, err := json.Marshal(adminapi.AddModuleRequest{Path: modulePath, Config: config})
	if err != nil {
		return "", fmt.Errorf("edgegateway: encode add module: %w", err)
	}
	status, respPayload, err := c.sendRequest(adminapi.CmdAddModule, payload)
	if err != nil {
		return "", err
	}
	if status != adminapi.StatusOK {
		return "", decodeError(respPayload)
	}
	var out adminapi.AddModuleResponse
	if err := json.Unmarshal(respPayload, &out); err != nil {
		return "", fmt.Errorf("edgegateway: decode add module response: %w", err)
	}
	return out.HandleID, nil
}

// RemoveModule unloads the module instance identified by handleID.
func (c *Client) RemoveModule(handleID string) error {
	payload, err := json.Marshal(adminapi.RemoveModuleRequest{HandleID: handleID})
	if err != nil {
		return fmt.Errorf("edgegateway: encode remove module: %w", err)
	}
	status, respPayload, err := c.sendRequest(adminapi.CmdRemoveModule, payload)
	if err != nil {
		return err
	}
	if status != adminapi.StatusOK {
		return decodeError(respPayload)
	}
	return nil
}

// BrokerStats returns the broker's current message counters.
func (c *Client) BrokerStats() (adminapi.BrokerStatsResponse, error) {
	status, payload, err := c.sendRequest(adminapi.CmdBrokerStats, nil)
	if err != nil {
		return adminapi.BrokerStatsResponse{}, err
	}
	if status != adminapi.StatusOK {
		return adminapi.BrokerStatsResponse{}, decodeError(payload)
	}
	var out adminapi.BrokerStatsResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return adminapi.BrokerStatsResponse{}, fmt.Errorf("edgegateway: decode broker stats: %w", err)
	}
	return out, nil
}
