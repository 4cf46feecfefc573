package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rescp17/noftp/pkg/netmsg"
	"github.com/rescp17/noftp/pkg/protoerr"
)

var (
	ErrRejected = errors.New("session rejected")
	// ErrRemote wraps an Error message sent by the peer.
	ErrRemote = errors.New("peer reported an error")
)

type Client struct {
	conn *netmsg.Conn
	id   netmsg.ConnectionID
}

func Dial(ctx context.Context, addr string, idleTimeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", protoerr.ErrIOFailure, addr, err)
	}
	c := netmsg.NewConn(conn)
	c.SetIdleTimeout(idleTimeout)
	return &Client{conn: c}, nil
}

// ID is the session opened or resumed on this connection.
func (c *Client) ID() netmsg.ConnectionID { return c.id }

// Open starts a new session with a fresh identifier.
func (c *Client) Open(ctx context.Context) (netmsg.ConnectionID, error) {
	id := netmsg.NewConnectionID()
	reply, err := c.roundTrip(ctx, netmsg.SessionInitializationRequest{ID: id})
	if err != nil {
		return "", err
	}
	resp, ok := reply.(netmsg.SessionInitializationResponse)
	if !ok {
		return "", fmt.Errorf("%w: unexpected %s reply", protoerr.ErrMalformedHeader, reply.Kind())
	}
	if !resp.Accept {
		return "", ErrRejected
	}
	c.id = resp.ID
	return resp.ID, nil
}

// Resume asks the peer to continue session id.
func (c *Client) Resume(ctx context.Context, id netmsg.ConnectionID) error {
	reply, err := c.roundTrip(ctx, netmsg.SessionResumeRequest{ID: id})
	if err != nil {
		return err
	}
	resp, ok := reply.(netmsg.SessionResumeResponse)
	if !ok {
		return fmt.Errorf("%w: unexpected %s reply", protoerr.ErrMalformedHeader, reply.Kind())
	}
	if !resp.Accept {
		return ErrRejected
	}
	c.id = resp.ID
	return nil
}

// End closes the session and the connection.
func (c *Client) End(ctx context.Context) error {
	err := c.conn.WriteMessage(ctx, netmsg.SessionEnd{})
	if closeErr := c.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close drops the connection without ending the session, so it can be
// resumed later.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, m netmsg.Message) (netmsg.Message, error) {
	if err := c.conn.WriteMessage(ctx, m); err != nil {
		return nil, err
	}
	_, reply, err := c.conn.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	if e, ok := reply.(netmsg.ErrorMessage); ok {
		return nil, fmt.Errorf("%w: %s", ErrRemote, e.Message)
	}
	return reply, nil
}

// Handshake opens and immediately ends a session, confirming the peer
// speaks the protocol.
func Handshake(ctx context.Context, addr string, idleTimeout time.Duration) (netmsg.ConnectionID, error) {
	c, err := Dial(ctx, addr, idleTimeout)
	if err != nil {
		return "", err
	}
	id, err := c.Open(ctx)
	if err != nil {
		_ = c.Close()
		return "", err
	}
	return id, c.End(ctx)
}
