// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/learningequality/dynstatic/lib/codec"
	"github.com/learningequality/dynstatic/lib/document"
)

// Server exposes a document.Provider on a Unix socket.
type Server struct {
	socketPath  string
	provider    document.Provider
	authorities []string
	logger      *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	// activeConnections tracks in-flight requests so Serve can drain
	// them before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server for provider listening on socketPath.
// authorities is what describe reports; it should cover every URI the
// provider recognizes.
func NewServer(socketPath string, provider document.Provider, authorities []string, logger *slog.Logger) *Server {
	if provider == nil {
		panic("remote.NewServer: provider is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		socketPath:  socketPath,
		provider:    provider,
		authorities: authorities,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

// Ready returns a channel closed once the socket is accepting
// connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests. A stale socket file is removed before listening
// and the socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.socketPath, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("document provider listening",
		"path", s.socketPath,
		"authorities", s.authorities,
	)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var request Request
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&request); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, "", fmt.Errorf("%w: invalid request: %v", document.ErrIllegalArgument, err))
		return
	}

	switch request.Action {
	case ActionDescribe:
		s.writeSuccess(conn, request.Action, DescribeResult{Authorities: s.authorities}, nil)

	case ActionQuery:
		rows, err := s.query(ctx, request)
		if err != nil {
			s.writeError(conn, request.Action, err)
			return
		}
		s.writeSuccess(conn, request.Action, QueryResult{Rows: rows}, nil)

	case ActionOpen:
		file, err := s.provider.OpenAssetFile(ctx, request.URI, request.Mode)
		if err != nil {
			s.writeError(conn, request.Action, err)
			return
		}
		// The client receives its own duplicate of the descriptor.
		defer file.Close()
		s.writeSuccess(conn, request.Action, nil, file)

	case "":
		s.writeError(conn, "", fmt.Errorf("%w: missing required field: action", document.ErrIllegalArgument))

	default:
		s.writeError(conn, request.Action, fmt.Errorf("%w: unknown action %q", document.ErrIllegalArgument, request.Action))
	}
}

func (s *Server) query(ctx context.Context, request Request) ([][]any, error) {
	cursor, err := s.provider.Query(ctx, request.URI, request.Columns)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	rows := make([][]any, 0, cursor.Count())
	for cursor.Next() {
		row := make([]any, len(request.Columns))
		for i, column := range request.Columns {
			switch column {
			case document.ColumnSize, document.ColumnLastModified:
				row[i] = cursor.Int64(i)
			default:
				row[i] = cursor.String(i)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeError sends {ok: false} with the error's kind. Write failures
// are logged at debug level; the connection is closing regardless.
func (s *Server) writeError(conn *net.UnixConn, action string, err error) {
	kind := errorKind(err)
	s.logger.Debug("provider action failed",
		"action", action,
		"kind", kind,
		"error", err,
	)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: err.Error(),
		Kind:  kind,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends {ok: true, data: ...}. When file is non-nil its
// descriptor rides along with the response bytes in one sendmsg.
func (s *Server) writeSuccess(conn *net.UnixConn, action string, result any, file *os.File) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, action, fmt.Errorf("internal: marshaling response: %w", err))
			return
		}
		response.Data = data
	}

	payload, err := codec.Marshal(response)
	if err != nil {
		s.logger.Debug("failed to marshal response", "action", action, "error", err)
		return
	}

	var rights []byte
	if file != nil {
		rights = unix.UnixRights(int(file.Fd()))
	}
	// sendmsg on a stream socket may write a prefix of a large payload.
	written, _, err := conn.WriteMsgUnix(payload, rights, nil)
	if err == nil && written < len(payload) {
		_, err = conn.Write(payload[written:])
	}
	if err != nil {
		s.logger.Debug("failed to write success response", "action", action, "error", err)
	}
}
