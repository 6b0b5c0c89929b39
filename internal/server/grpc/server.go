// Package grpcserver exposes the gateway synchronization stream.
package grpcserver

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/dwongdev/defguard/gen/go/gateway/v1"
	"github.com/dwongdev/defguard/internal/convert"
	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/gateway"
	"github.com/dwongdev/defguard/internal/model"
)

// NetworkSource reads the network and its pushable peer set.
type NetworkSource interface {
	Get(ctx context.Context, id int64) (*model.Network, error)
	Peers(ctx context.Context, networkID int64) ([]model.GatewayPeer, error)
}

// StatsSink accepts inbound telemetry samples.
type StatsSink interface {
	Ingest(ctx context.Context, sample model.PeerStatSample, publicKey string) error
}

// Server wires gateway sessions into the registry and services.
type Server struct {
	pb.UnimplementedGatewayServiceServer
	networks NetworkSource
	stats    StatsSink
	registry *gateway.Registry
	signKey  []byte
	log      *zap.Logger
}

// New constructs a gRPC server with injected collaborators.
func New(networks NetworkSource, stats StatsSink, registry *gateway.Registry, signKey []byte, log *zap.Logger) *Server {
	return &Server{networks: networks, stats: stats, registry: registry, signKey: signKey, log: log}
}

// Session is the long-lived control connection of one gateway. The first
// outbound message after (re)connect is always the full configuration
// snapshot derived from current store state; incremental updates follow
// through the registry outbox. Inbound stat samples feed the ingestion
// pipeline without ever blocking the outbound path. This goroutine is the
// only writer of the stream.
func (s *Server) Session(stream pb.GatewayService_SessionServer) error {
	ctx := stream.Context()
	gw, err := s.authenticate(ctx)
	if err != nil {
		return err
	}

	n, err := s.networks.Get(ctx, gw.NetworkID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return status.Error(codes.NotFound, "network not found")
		}
		return status.Errorf(codes.Internal, "load network: %v", err)
	}

	// Register before reading the snapshot: every store mutation after this
	// point reaches the outbox, so the snapshot plus the outbox cover the
	// whole history. Duplicates across the boundary apply idempotently.
	conn := s.registry.Register(gw.NetworkID, gw.Hostname)
	defer s.registry.Unregister(conn)

	peers, err := s.networks.Peers(ctx, n.ID)
	if err != nil {
		return status.Errorf(codes.Internal, "load peers: %v", err)
	}
	full := &pb.Update{
		Kind:   pb.UpdateKind_UPDATE_KIND_FULL,
		Config: convert.ToProtoConfiguration(n, peers),
	}
	if err := stream.Send(full); err != nil {
		return err
	}

	recvErr := make(chan error, 1)
	go s.readStats(stream, gw, recvErr)

	for {
		select {
		case up := <-conn.Outbox():
			if err := stream.Send(up); err != nil {
				return err
			}
		case err := <-recvErr:
			if err == nil || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// readStats drains inbound samples into the ingestion pipeline. The network
// id always comes from the session token, never from the message.
func (s *Server) readStats(stream pb.GatewayService_SessionServer, gw gatewayIdentity, done chan<- error) {
	for {
		in, err := stream.Recv()
		if err != nil {
			done <- err
			return
		}
		sample, err := convert.FromProtoStatsUpdate(in)
		if err != nil {
			s.log.Warn("malformed stat sample dropped",
				zap.String("hostname", gw.Hostname), zap.Error(err))
			continue
		}
		sample.NetworkID = gw.NetworkID
		if err := s.stats.Ingest(stream.Context(), sample, in.GetPublicKey()); err != nil {
			s.log.Warn("stat sample not ingested",
				zap.String("hostname", gw.Hostname), zap.Error(err))
		}
	}
}
