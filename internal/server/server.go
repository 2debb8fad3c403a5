// Package server 在同一个QUIC监听端口上同时服务原生QUIC与WebTransport客户端
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/buffer"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/event"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relay"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/transport"
)

// ALPNRaw 原生QUIC客户端使用的ALPN标识，其余连接走h3升级为WebTransport
const ALPNRaw = "moq-00"

const defaultHandshakeTimeout = 10 * time.Second

var sem = make(chan struct{}, 10000)

type Server struct {
	relay            *relay.Relay
	control          *dispatch.ControlDispatcher
	signals          *dispatch.SignalDispatcher
	buffers          *buffer.Manager
	handshakeTimeout time.Duration
	nextSessionID    atomic.Uint64
	wt               *webtransport.Server
}

func NewServer(r *relay.Relay, control *dispatch.ControlDispatcher, signals *dispatch.SignalDispatcher, buffers *buffer.Manager, handshakeTimeout time.Duration) *Server {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &Server{
		relay:            r,
		control:          control,
		signals:          signals,
		buffers:          buffers,
		handshakeTimeout: handshakeTimeout,
	}
}

type ListenerCloseCallback struct {
	listener *quic.Listener
}

func (lc *ListenerCloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing QUIC listener")
	return lc.listener.Close()
}

type ConnectionsCloseCallback struct{}

func (cc *ConnectionsCloseCallback) Invoke(ctx context.Context) error {
	connection.GetConnectionManager().CloseAll(0, "server shutting down")
	return nil
}

// StartServer 监听QUIC端口并按协商的ALPN分发连接，只在无法启动时退出进程
func (s *Server) StartServer(conf config.Config) {
	cert, err := tls.LoadX509KeyPair(conf.Server.CertFile, conf.Server.KeyFile)
	if err != nil {
		logger.FatalF("Fail to load TLS certificate, details: %v", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNRaw, http3.NextProtoH3},
	}
	quicConf := &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  5 * time.Minute,
	}

	ln, err := quic.ListenAddr(":"+strconv.Itoa(conf.AppPort), tlsConf, quicConf)
	if err != nil {
		logger.FatalF("Relay Server Start error: %v", err)
	}
	logger.InfoF("Relay Server Listen On " + ln.Addr().String())
	event.NewCleaner().Add(&ListenerCloseCallback{listener: ln})
	event.NewCleaner().Add(&ConnectionsCloseCallback{})

	path := conf.Server.WebTransportPath
	if path == "" {
		path = "/moq"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.wt.Upgrade(w, r)
		if err != nil {
			logger.WarnF("Fail to upgrade WebTransport session, details: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		sem <- struct{}{}
		go func() {
			s.handleConnection(transport.NewWebTransportConnection(sess))
			<-sem
		}()
	})
	s.wt = &webtransport.Server{
		H3: http3.Server{
			Handler:         mux,
			EnableDatagrams: true,
		},
	}

	for {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				logger.InfoF("Listener closed, stop accepting connections")
				return
			}
			logger.ErrorF("Accept connection error: %v", err)
			continue
		}

		switch conn.ConnectionState().TLS.NegotiatedProtocol {
		case ALPNRaw:
			sem <- struct{}{}
			go func(c quic.Connection) {
				s.handleConnection(transport.NewQUICConnection(c))
				<-sem
			}(conn)
		default:
			// h3连接交给WebTransport服务器，升级成功后回到handleConnection
			go func(c quic.Connection) {
				if err := s.wt.H3.ServeQUICConn(c); err != nil {
					logger.DebugF("WebTransport connection ended, details: %v", err)
				}
			}(conn)
		}
	}
}
