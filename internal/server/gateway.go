package server

import (
	"context"

	"imagescan/internal/biz"
	"imagescan/internal/gateway"
	"imagescan/internal/service"

	"github.com/go-kratos/kratos/v2/log"
)

type messageSource interface {
	SubscribeMessageCreate(handler func(msg *biz.Message)) error
	StopReceiving(ctx context.Context) error
	Drain() error
}

type messageDispatcher interface {
	OnMessageCreate(msg *biz.Message) int
	Wait()
}

// GatewayServer feeds inbound chat messages to the scanner service.
type GatewayServer struct {
	client  messageSource
	scanner messageDispatcher
	log     *log.Helper
}

// NewGatewayServer creates a new GatewayServer.
func NewGatewayServer(client *gateway.Client, scanner *service.ScannerService, logger log.Logger) *GatewayServer {
	return &GatewayServer{
		client:  client,
		scanner: scanner,
		log:     log.NewHelper(logger),
	}
}

// Start subscribes to inbound messages.
func (s *GatewayServer) Start(context.Context) error {
	if err := s.client.SubscribeMessageCreate(func(msg *biz.Message) {
		s.scanner.OnMessageCreate(msg)
	}); err != nil {
		return err
	}
	s.log.Infof("[gateway] listening on %s", gateway.SubjectMessageCreate)
	return nil
}

// Stop stops intake, waits for running scans so their deletes and posts
// still reach the bridge, then drains the connection.
func (s *GatewayServer) Stop(ctx context.Context) error {
	if err := s.client.StopReceiving(ctx); err != nil {
		s.log.Warnf("[gateway] stop receiving: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.scanner.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("[gateway] all scans finished")
	case <-ctx.Done():
		s.log.Warn("[gateway] stop timeout, abandoning running scans")
	}

	if err := s.client.Drain(); err != nil {
		s.log.Warnf("[gateway] drain: %v", err)
	}
	return nil
}
