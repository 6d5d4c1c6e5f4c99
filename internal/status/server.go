// Package status serves a local view of the running conversation: Prometheus
// metrics, a health probe, and MCP tools that read published snapshots.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/app"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/db"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
)

// SnapshotSource returns the latest conversation snapshot.
type SnapshotSource interface {
	Load() app.Snapshot
}

// History lists past conversation lifetimes.
type History interface {
	RecentSessions(limit int) ([]db.Session, error)
}

// Server is the status HTTP server. It never touches live conversation
// state, only snapshots.
type Server struct {
	addr    string
	src     SnapshotSource
	history History
	mux     *http.ServeMux
	mcp     *server.MCPServer

	httpServer *http.Server
	shutdown   atomic.Bool
}

// NewServer builds a server for addr. history may be nil.
func NewServer(addr, version string, src SnapshotSource, history History) *Server {
	s := &Server{
		addr:    addr,
		src:     src,
		history: history,
		mux:     http.NewServeMux(),
		mcp:     server.NewMCPServer("whatsword", version, server.WithToolCapabilities(false)),
	}
	s.tools()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	s.mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp))
}

func (s *Server) tools() {
	s.mcp.AddTool(mcp.NewTool("conversation_status",
		mcp.WithDescription("Current conversation phase, connection and microphone state"),
	), s.handleStatus)

	s.mcp.AddTool(mcp.NewTool("conversation_transcript",
		mcp.WithDescription("Most recent utterances of the current conversation, oldest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of utterances (default 20)")),
	), s.handleTranscript)

	s.mcp.AddTool(mcp.NewTool("recent_sessions",
		mcp.WithDescription("Recently joined sessions and how they ended"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions (default 10)")),
	), s.handleRecentSessions)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens and serves until Shutdown. It returns once the listener is
// bound; serving continues in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("status server starting")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server")
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdown.Swap(true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

type statusResult struct {
	SessionID  string    `json:"sessionId"`
	Role       string    `json:"role"`
	Phase      string    `json:"phase"`
	Connection string    `json:"connection"`
	Capture    string    `json:"capture"`
	Interim    string    `json:"interim,omitempty"`
	Error      string    `json:"error,omitempty"`
	Utterances int       `json:"utterances"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type utteranceResult struct {
	ID             string    `json:"id"`
	Sender         string    `json:"sender"`
	OriginalText   string    `json:"originalText"`
	TranslatedText string    `json:"translatedText,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type sessionResult struct {
	SessionID  string     `json:"sessionId"`
	Role       string     `json:"role"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	EndReason  string     `json:"endReason,omitempty"`
	Utterances int        `json:"utterances"`
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.src.Load()
	return jsonResult(statusResult{
		SessionID:  snap.SessionID,
		Role:       string(snap.Role),
		Phase:      snap.Phase.String(),
		Connection: snap.Connection.String(),
		Capture:    snap.Capture.String(),
		Interim:    snap.Capture.Text,
		Error:      snap.Error,
		Utterances: len(snap.Utterances),
		UpdatedAt:  snap.UpdatedAt,
	})
}

func (s *Server) handleTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	utts := s.src.Load().Utterances
	if limit > 0 && len(utts) > limit {
		utts = utts[len(utts)-limit:]
	}
	out := make([]utteranceResult, 0, len(utts))
	for _, u := range utts {
		out = append(out, utteranceResult{
			ID:             u.ID,
			Sender:         string(u.Sender),
			OriginalText:   u.OriginalText,
			TranslatedText: u.TranslatedText,
			CreatedAt:      u.CreatedAt,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleRecentSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("session history is disabled"), nil
	}
	sessions, err := s.history.RecentSessions(req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]sessionResult, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResult{
			SessionID:  sess.SessionID,
			Role:       sess.Role,
			StartedAt:  sess.StartedAt,
			EndedAt:    sess.EndedAt,
			EndReason:  sess.EndReason,
			Utterances: sess.UtteranceCount,
		})
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
