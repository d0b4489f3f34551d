package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/zemekeneng/rankchoice/internal/environment"
	"github.com/zemekeneng/rankchoice/internal/log"
)

// EnvPort names the port the server listens on, matching the teacher's
// envVotePort idiom in vote/http/http.go.
var EnvPort = environment.NewVariable("VOTE_PORT", "8081", "Port the rankchoice service listens on.")

// Server starts and stops the HTTP listener. Addr holds the address
// set by New (":" plus the configured port) until StartListener or Run
// binds a socket; it then holds the resolved listen address.
type Server struct {
	Addr string
	lst  net.Listener
	deps Deps
}

// New builds a Server that reads its listen address from lookup.
func New(lookup environment.Lookup, deps Deps) Server {
	return Server{Addr: ":" + EnvPort.Value(lookup), deps: deps}
}

// StartListener binds the configured address. Exposed separately from
// Run so tests can bind an ephemeral port (":0") and read back the
// resolved address before serving.
func (s *Server) StartListener() error {
	lst, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Addr, err)
	}
	s.lst = lst
	s.Addr = lst.Addr().String()
	return nil
}

// Run serves until ctx is cancelled, then gracefully shuts down.
func (s *Server) Run(ctx context.Context) error {
	mux := registerHandlers(s.deps)

	srv := &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	wait := make(chan error, 1)
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			wait <- fmt.Errorf("HTTP server shutdown: %w", err)
			return
		}
		wait <- nil
	}()

	if s.lst == nil {
		if err := s.StartListener(); err != nil {
			return fmt.Errorf("start listening: %w", err)
		}
	}

	log.Logger.Info().Str("addr", s.Addr).Msg("listening")
	if err := srv.Serve(s.lst); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return <-wait
}

// registerHandlers wires every route named in SPEC_FULL.md §7 onto a
// fresh mux, matching the teacher's registerHandlers in vote/http/http.go.
func registerHandlers(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /vote/{token}", resolveError(handleBallotForm(d)))
	mux.Handle("POST /vote/{token}", resolveError(handleSubmitInvitedBallot(d)))
	mux.Handle("GET /vote/{token}/receipt", resolveError(handleBallotReceipt(d)))
	mux.Handle("POST /polls/{id}/vote", resolveError(handleSubmitAnonymousBallot(d)))
	mux.Handle("GET /polls/{id}/results", resolveError(handleResults(d)))
	mux.Handle("GET /polls/{id}/results/rounds", resolveError(handleRounds(d)))
	mux.Handle("GET /healthz", resolveError(handleHealth()))

	return mux
}
