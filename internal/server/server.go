package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleettrack/internal/metrics"
	"fleettrack/internal/models"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
)

const readBufferSize = 4096

// Frame decoders keep at most this much residual data per connection.
const maxResidual = 64 * 1024

// TrackerServer 单协议 TCP 接入服务器
type TrackerServer struct {
	proto        *protocol.Protocol
	addr         string
	pipeline     *Pipeline
	sessions     *session.Registry
	readTimeout  time.Duration
	writeTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
}

// NewTrackerServer 创建接入服务器
func NewTrackerServer(
	proto *protocol.Protocol,
	addr string,
	pipeline *Pipeline,
	sessions *session.Registry,
	readTimeout, writeTimeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TrackerServer {
	return &TrackerServer{
		proto:        proto,
		addr:         addr,
		pipeline:     pipeline,
		sessions:     sessions,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		metrics:      m,
		logger:       logger.With(zap.String("protocol", proto.Name)),
	}
}

// Run 监听并处理连接，直到 ctx 取消
func (s *TrackerServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info("Tracker server listening", zap.String("addr", s.addr))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Warn("Accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	s.logger.Info("Tracker server stopped")
	return nil
}

// handleConn 单连接读循环
// AwaitingFirstFrame → Identified → Active 的状态都由会话注册表承载；
// 这里只负责切帧和喂给处理链。
func (s *TrackerServer) handleConn(ctx context.Context, conn net.Conn) {
	ch := newTCPChannel(conn, s.writeTimeout)
	decoder := s.proto.NewFrameDecoder()
	logger := s.logger.With(
		zap.String("conn_id", uuid.NewString()),
		zap.String("remote", ch.RemoteAddr()),
	)

	if s.metrics != nil {
		s.metrics.ActiveConnections.WithLabelValues(s.proto.Name).Inc()
		defer s.metrics.ActiveConnections.WithLabelValues(s.proto.Name).Dec()
	}
	logger.Info("Connection opened")

	defer func() {
		s.sessions.RemoveChannel(ch)
		conn.Close()
		logger.Info("Connection closed")
	}()

	var residual []byte
	chunk := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		n, err := conn.Read(chunk)
		if err != nil {
			return
		}
		residual = append(residual, chunk[:n]...)
		if len(residual) > maxResidual {
			logger.Warn("Closing connection, residual buffer overflow")
			return
		}

		for {
			frame, rest, err := decoder.Decode(residual)
			if err != nil {
				if errors.Is(err, protocol.ErrFrameIncomplete) {
					break
				}
				// Desynchronized stream cannot be re-framed; drop the
				// connection and let the device reconnect.
				logger.Warn("Closing desynchronized connection", zap.Error(err))
				return
			}
			residual = rest

			if err := s.pipeline.HandleFrame(ctx, s.proto, ch, frame); err != nil {
				logger.Warn("Closing connection after pipeline failure", zap.Error(err))
				return
			}
		}
	}
}

// CommandSender 下行指令发送器
type CommandSender struct {
	sessions  *session.Registry
	protocols *protocol.Registry
	logger    *zap.Logger
}

// NewCommandSender 创建指令发送器
func NewCommandSender(sessions *session.Registry, protocols *protocol.Registry, logger *zap.Logger) *CommandSender {
	return &CommandSender{
		sessions:  sessions,
		protocols: protocols,
		logger:    logger,
	}
}

// SendCommand 向在线设备下发指令
// 设备不在线返回 session.ErrNoSession；协议无编码器或不支持该指令
// 返回 protocol.ErrCommandUnsupported。
func (s *CommandSender) SendCommand(deviceID int64, command *models.Command) error {
	sess := s.sessions.Session(deviceID)
	if sess == nil {
		return session.ErrNoSession
	}
	proto, err := s.protocols.Get(sess.Protocol())
	if err != nil {
		return err
	}
	if proto.Encoder == nil {
		return protocol.ErrCommandUnsupported
	}

	data, err := proto.Encoder.Encode(sess, command)
	if err != nil {
		return err
	}
	ch := sess.Channel()
	if ch == nil {
		return session.ErrNoSession
	}
	if err := ch.Write(data); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}

	s.logger.Info("Command sent",
		zap.Int64("device_id", deviceID),
		zap.String("protocol", proto.Name),
		zap.String("type", command.Type),
	)
	return nil
}
