// Package statusd exposes a running optimization over HTTP and gRPC.
package statusd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/GoSim-25-26J-441/smbo/internal/metrics"
	"github.com/GoSim-25-26J-441/smbo/internal/resultlog"
	"github.com/GoSim-25-26J-441/smbo/internal/smbo"
	"github.com/GoSim-25-26J-441/smbo/pkg/logger"
)

// ServiceName is the gRPC health service name reported for the loop.
const ServiceName = "smbo.Loop"

// Source is the run being served. *smbo.Loop satisfies it.
type Source interface {
	RunID() string
	Progress() smbo.Progress
	ResultLog() *resultlog.Log
	Direction() resultlog.Direction
}

// Server serves run status, the best point and Prometheus metrics.
type Server struct {
	mux      *http.ServeMux
	source   Source
	recorder *metrics.Recorder
	health   *health.Server
	grpc     *grpc.Server
}

// New builds a server for source. recorder may be nil, in which case
// /metrics is not mounted.
func New(source Source, recorder *metrics.Recorder) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		source:   source,
		recorder: recorder,
		health:   health.NewServer(),
		grpc:     grpc.NewServer(),
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/run", s.handleRun)
	s.mux.HandleFunc("/v1/run/best", s.handleBest)
	s.mux.HandleFunc("/v1/run/history", s.handleHistory)
	if recorder != nil {
		s.mux.Handle("/metrics", recorder.Handler())
	}

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.grpc.RegisterService(&statusServiceDesc, s)
	reflection.Register(s.grpc)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GRPCServer returns the gRPC server carrying the health and status services.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc
}

// ReportProgress is an smbo progress reporter that keeps the gRPC health
// status in step with the loop.
func (s *Server) ReportProgress(p smbo.Progress) {
	status := healthpb.HealthCheckResponse_SERVING
	if p.State == smbo.StateTerminated {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Serve listens on the given addresses until ctx is done. An empty address
// disables that listener.
func (s *Server) Serve(ctx context.Context, httpAddr, grpcAddr string) error {
	errc := make(chan error, 2)

	var httpSrv *http.Server
	if httpAddr != "" {
		lis, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return err
		}
		httpSrv = &http.Server{
			Handler:           s.mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			logger.Info("HTTP status server listening", "addr", lis.Addr().String())
			if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			if httpSrv != nil {
				_ = httpSrv.Close()
			}
			return err
		}
		go func() {
			logger.Info("gRPC status server listening", "addr", lis.Addr().String())
			if err := s.grpc.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		logger.Error("status server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.health.Shutdown()
	s.grpc.GracefulStop()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
	}
	return serveErr
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRun handles GET /v1/run
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.runStatus())
}

// handleBest handles GET /v1/run/best
func (s *Server) handleBest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	best := s.best()
	if best == nil {
		s.writeError(w, http.StatusNotFound, errNoBest)
		return
	}
	s.writeJSON(w, http.StatusOK, best)
}

// handleHistory handles GET /v1/run/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.source.ResultLog().Export(s.source.Direction(), true))
}

const errNoBest = "no valid observation yet"

// runStatus is the body of /v1/run and of the gRPC GetRun call.
func (s *Server) runStatus() map[string]any {
	p := s.source.Progress()
	snap := s.source.ResultLog().Export(s.source.Direction(), false)

	resp := map[string]any{
		"run_id":           s.source.RunID(),
		"state":            string(p.State),
		"direction":        string(snap.Direction),
		"iteration":        p.Iteration,
		"proposed":         p.Proposed,
		"evaluations":      p.Evaluations,
		"failures":         p.Failures,
		"failure_fraction": snap.FailureFraction,
		"elapsed_seconds":  p.Elapsed.Seconds(),
		"remaining":        p.Remaining,
	}
	if p.TimeLeft >= 0 {
		resp["time_left_seconds"] = p.TimeLeft.Seconds()
	}
	if snap.Best != nil {
		resp["best"] = snap.Best
	}
	if s.recorder != nil {
		resp["metrics"] = s.recorder.Summary()
	}
	return resp
}

func (s *Server) best() *resultlog.Record {
	return s.source.ResultLog().Export(s.source.Direction(), false).Best
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
