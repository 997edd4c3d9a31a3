// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/learningequality/dynstatic/lib/codec"
	"github.com/learningequality/dynstatic/lib/document"
)

// firstReadSize is the buffer for the recvmsg that collects the
// descriptor. Anything beyond it is read from the stream normally.
const firstReadSize = 64 * 1024

// Client implements document.Provider by calling a Server. Each call
// opens its own connection, so a Client is safe for concurrent use
// and holds no per-request state between calls.
type Client struct {
	document.Contract

	socketPath  string
	authorities []string
	logger      *slog.Logger
}

// Dial connects to the server at socketPath once to learn its
// authorities, and returns a Client for it.
func Dial(ctx context.Context, socketPath string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := &Client{socketPath: socketPath, logger: logger}

	var described DescribeResult
	if _, err := client.call(ctx, Request{Action: ActionDescribe}, &described); err != nil {
		return nil, err
	}
	if len(described.Authorities) == 0 {
		return nil, fmt.Errorf("remote provider at %s reports no authorities", socketPath)
	}
	client.authorities = described.Authorities
	client.Contract = document.NewContract(described.Authorities...)

	logger.Info("connected to document provider",
		"path", socketPath,
		"authorities", described.Authorities,
	)
	return client, nil
}

// Authorities returns the authorities reported by the server.
func (c *Client) Authorities() []string {
	return c.authorities
}

// Query implements document.Provider.
func (c *Client) Query(ctx context.Context, uri string, columns []string) (document.Cursor, error) {
	var result QueryResult
	if _, err := c.call(ctx, Request{Action: ActionQuery, URI: uri, Columns: columns}, &result); err != nil {
		return nil, err
	}
	return document.NewRowCursor(result.Rows), nil
}

// OpenAssetFile implements document.Provider. The returned file wraps
// a descriptor received from the server and is owned by the caller.
func (c *Client) OpenAssetFile(ctx context.Context, uri, mode string) (*os.File, error) {
	file, err := c.call(ctx, Request{Action: ActionOpen, URI: uri, Mode: mode}, nil)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("remote provider open of %s returned no descriptor", uri)
	}
	return file, nil
}

// call performs one request-response exchange. Any descriptor that
// arrives with a successful response is returned as a file; one that
// arrives with a failure is closed.
func (c *Client) call(ctx context.Context, request Request, result any) (*os.File, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: connecting: %w", request.Action, c.socketPath, err)
	}
	defer conn.Close()
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("calling %q on %s: not a unix connection", request.Action, c.socketPath)
	}

	if deadline, ok := ctx.Deadline(); ok {
		unixConn.SetDeadline(deadline)
	}
	if err := codec.NewEncoder(unixConn).Encode(request); err != nil {
		return nil, fmt.Errorf("calling %q on %s: writing request: %w", request.Action, c.socketPath, err)
	}
	unixConn.CloseWrite()

	unixConn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	response, file, err := readResponse(unixConn, request.URI)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: %w", request.Action, c.socketPath, err)
	}

	if !response.OK {
		if file != nil {
			file.Close()
		}
		return nil, &Error{Action: request.Action, Kind: response.Kind, Message: response.Error}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			if file != nil {
				file.Close()
			}
			return nil, fmt.Errorf("decoding %q response: %w", request.Action, err)
		}
	}
	return file, nil
}

// readResponse decodes one Response, collecting a descriptor passed
// with the first segment.
func readResponse(conn *net.UnixConn, name string) (*Response, *os.File, error) {
	buffer := make([]byte, firstReadSize)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buffer, oob)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	var file *os.File
	if oobn > 0 {
		file, err = receivedFile(oob[:oobn], name)
		if err != nil {
			return nil, nil, err
		}
	}

	stream := io.MultiReader(bytes.NewReader(buffer[:n]), conn)
	var response Response
	if err := codec.NewDecoder(io.LimitReader(stream, maxMessageSize)).Decode(&response); err != nil {
		if file != nil {
			file.Close()
		}
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, file, nil
}

func receivedFile(oob []byte, name string) (*os.File, error) {
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	var descriptors []int
	for i := range messages {
		fds, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			continue
		}
		descriptors = append(descriptors, fds...)
	}
	if len(descriptors) == 0 {
		return nil, nil
	}
	for _, extra := range descriptors[1:] {
		unix.Close(extra)
	}
	return os.NewFile(uintptr(descriptors[0]), name), nil
}

var _ document.Provider = (*Client)(nil)
