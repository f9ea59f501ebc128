package rpc

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Server wraps the gRPC server and its Unix domain socket listener.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *slog.Logger
}

// New binds an Exchange server for pool to socketPath.
func New(socketPath string, pool Pool, logger *slog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("rpc: create socket directory: %w", err)
	}

	// Remove any stale socket file from a previous run.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("rpc: remove stale socket: %w", err)
	}

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen on unix socket %s: %w", socketPath, err)
	}

	// Owner only.
	if err := os.Chmod(socketPath, 0o600); err != nil {
		lis.Close()
		return nil, fmt.Errorf("rpc: chmod socket: %w", err)
	}

	gs := grpc.NewServer()
	RegisterExchangeServer(gs, NewHandler(pool))

	return &Server{
		grpcServer: gs,
		listener:   lis,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Serve accepts connections until the server is stopped.
func (s *Server) Serve() error {
	s.logger.Info("rpc: serving", "socket", s.socketPath)
	return s.grpcServer.Serve(s.listener)
}

// GracefulStop drains in-flight RPCs and removes the socket file.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
	os.Remove(s.socketPath)
}

// Dial connects to a server on socketPath.
func Dial(socketPath string) (*grpc.ClientConn, *Client, error) {
	conn, err := grpc.NewClient(
		"unix:"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("rpc: dial %s: %w", socketPath, err)
	}
	return conn, NewClient(conn), nil
}
