package grpc

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"
)

// ServiceName is what the health service reports readiness under.
const ServiceName = "gathering"

type Server struct {
	srv    *grpc.Server
	health *health.Server
	db     *gorm.DB
}

func NewGrpc(db *gorm.DB) *Server {
	server := &Server{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		db:     db,
	}

	healthpb.RegisterHealthServer(server.srv, server.health)
	reflection.Register(server.srv)

	return server
}

// Probe flips the serving status on database reachability.
func (v *Server) Probe(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if sql, err := v.db.DB(); err != nil {
		ok = false
	} else {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := sql.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("Database did not answer the health probe.")
			ok = false
		}
	}
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	v.health.SetServingStatus("", status)
	v.health.SetServingStatus(ServiceName, status)
	return ok
}

func (v *Server) Listen() error {
	listener, err := net.Listen("tcp", viper.GetString("grpc_bind"))
	if err != nil {
		return err
	}

	return v.srv.Serve(listener)
}

func (v *Server) Stop() {
	v.health.Shutdown()
	v.srv.GracefulStop()
}
