package adminapi

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/kartikbazzad/edgegateway/internal/broker"
	"github.com/kartikbazzad/edgegateway/internal/gateway"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

const frameLenSize = 4

// Server is the gateway's admin Unix-socket server: an accept loop over a
// connection table, dispatching each request to a fixed set of synchronous
// commands (no long-lived sessions or streaming responses).
type Server struct {
	gw       *gateway.Gateway
	log      *obslog.Logger
	listener net.Listener

	mu          sync.Mutex
	running     bool
	connections map[net.Conn]struct{}

	handlesMu sync.Mutex
	handles   map[string]moduleRef // handle id (uuid) -> live module reference
}

type moduleRef struct {
	path   string
	handle module.Handle
}

// NewServer creates an admin API server fronting gw.
func NewServer(gw *gateway.Gateway, log *obslog.Logger) *Server {
	if log == nil {
		log = obslog.Default()
	}
	return &Server{
		gw:          gw,
		log:         log,
		connections: make(map[net.Conn]struct{}),
		handles:     make(map[string]moduleRef),
	}
}

// Track records a freshly added module instance under a new handle ID,
// returned to the caller (the daemon's startup path, or a prior AddModule
// command) for use in ModuleInfo/RemoveModule requests.
func (s *Server) Track(path string, handle module.Handle) string {
	id := uuid.NewString()
	s.handlesMu.Lock()
	s.handles[id] = moduleRef{path: path, handle: handle}
	s.handlesMu.Unlock()
	return id
}

// Start binds the admin socket and begins accepting connections.
func (s *Server) Start(socketPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	_ = os.RemoveAll(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("adminapi start: %w", err)
	}
	s.listener = listener
	s.running = true
	s.log.Info("admin api listening", "socket", socketPath)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.connections[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("admin connection panic", "panic", r)
		}
		conn.Close()
		s.mu.Lock()
		delete(s.connections, conn)
		s.mu.Unlock()
	}()

	for {
		data, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.log.Debug("admin connection read ended", "error", err)
			}
			return
		}

		req, err := DecodeRequest(data)
		if err != nil {
			s.log.Error("decode admin request failed", "error", err)
			continue
		}

		resp := s.dispatch(req)
		respData, err := EncodeResponse(resp)
		if err != nil {
			s.log.Error("encode admin response failed", "error", err)
			continue
		}
		if err := writeFrame(conn, respData); err != nil {
			s.log.Debug("write admin response failed", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req *RequestFrame) *ResponseFrame {
	resp := &ResponseFrame{RequestID: req.RequestID}
	switch req.Command {
	case CmdListModules:
		return s.handleListModules(resp)
	case CmdAddModule:
		return s.handleAddModule(req, resp)
	case CmdRemoveModule:
		return s.handleRemoveModule(req, resp)
	case CmdBrokerStats:
		return s.handleBrokerStats(resp)
	default:
		resp.Status = StatusError
		resp.Payload = ErrorPayload("unknown command")
		return resp
	}
}

func (s *Server) handleListModules(resp *ResponseFrame) *ResponseFrame {
	s.handlesMu.Lock()
	infos := make([]ModuleInfo, 0, len(s.handles))
	for id, ref := range s.handles {
		infos = append(infos, ModuleInfo{HandleID: id, Path: ref.path})
	}
	s.handlesMu.Unlock()

	payload, err := json.Marshal(infos)
	if err != nil {
		resp.Status = StatusError
		resp.Payload = ErrorPayload(err.Error())
		return resp
	}
	resp.Status = StatusOK
	resp.Payload = payload
	return resp
}

func (s *Server) handleAddModule(req *RequestFrame, resp *ResponseFrame) *ResponseFrame {
	var in AddModuleRequest
	if err := json.Unmarshal(req.Payload, &in); err != nil {
		resp.Status = StatusError
		resp.Payload = ErrorPayload(err.Error())
		return resp
	}

	handle, err := s.gw.AddModule(gateway.Entry{ModulePath: in.Path, Config: in.Config})
	if err != nil {
		resp.Status = StatusError
		resp.Payload = ErrorPayload(err.Error())
		return resp
	}

	id := s.Track(in.Path, handle)
	payload, _ := json.Marshal(AddModuleResponse{HandleID: id})
	resp.Status = StatusOK
	resp.Payload = payload
	return resp
}

func (s *Server) handleRemoveModule(req *RequestFrame, resp *ResponseFrame) *ResponseFrame {
	var in RemoveModuleRequest
	if err := json.Unmarshal(req.Payload, &in); err != nil {
		resp.Status = StatusError
		resp.Payload = ErrorPayload(err.Error())
		return resp
	}

	s.handlesMu.Lock()
	ref, ok := s.handles[in.HandleID]
	if ok {
		delete(s.handles, in.HandleID)
	}
	s.handlesMu.Unlock()

	if !ok {
		resp.Status = StatusError
		resp.Payload = ErrorPayload("unknown handle id")
		return resp
	}

	s.gw.RemoveModule(ref.handle)
	resp.Status = StatusOK
	resp.Payload = []byte("{}")
	return resp
}

func (s *Server) handleBrokerStats(resp *ResponseFrame) *ResponseFrame {
	stats := broker.CurrentStats()
	payload, _ := json.Marshal(BrokerStatsResponse{
		MessagesPublished: stats.MessagesPublished,
		MessagesDelivered: stats.MessagesDelivered,
		MalformedDropped:  stats.MalformedDropped,
		ActiveWorkers:     stats.ActiveWorkers,
	})
	resp.Status = StatusOK
	resp.Payload = payload
	return resp
}

func readFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, frameLenSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func writeFrame(w io.Writer, data []byte) error {
	lenBuf := make([]byte, frameLenSize)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
