package rcon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// Fragmentation selects how the client decides a multi-packet response is complete.
type Fragmentation string

const (
	// FragmentSentinel writes an empty RESPONSE_VALUE packet after the first
	// response packet of a command and stops reading when the server answers
	// it. Servers process requests in order, so everything for the command
	// arrives before the sentinel reply. Minecraft answers the sentinel with "Unknown request 0",
	// Source servers mirror it back empty; both are discarded.
	FragmentSentinel Fragmentation = "sentinel"

	// FragmentIdle keeps reading until no packet arrives within FragmentWait
	// after the first one.
	FragmentIdle Fragmentation = "idle"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 25575
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultFragmentWait   = 150 * time.Millisecond

	maxResponseSize = 1 << 20
)

// Config holds connection settings for a Client.
type Config struct {
	Host     string
	Port     int
	Password string

	// Credentials, when set, is consulted on every new session instead of
	// Host, Port and Password.
	Credentials CredentialSource

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Fragmentation  Fragmentation
	FragmentWait   time.Duration
}

// Option customizes a Config.
type Option func(*Config)

// WithTimeouts overrides connect and read timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = connect
		c.ReadTimeout = read
	}
}

// WithFragmentation selects the response assembly strategy.
func WithFragmentation(mode Fragmentation, wait time.Duration) Option {
	return func(c *Config) {
		c.Fragmentation = mode
		c.FragmentWait = wait
	}
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.Fragmentation != FragmentIdle {
		c.Fragmentation = FragmentSentinel
	}
	if c.FragmentWait <= 0 {
		c.FragmentWait = DefaultFragmentWait
	}
}

// Client speaks RCON to a single server. It keeps at most one authenticated
// session open and serializes requests over it; any error closes the session
// so the next call re-authenticates.
type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   net.Conn
	addr   string
	lastID int32
}

// NewClient returns a client that connects lazily on first Execute.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg}
}

// Dial creates a client and authenticates immediately.
func Dial(ctx context.Context, host string, port int, password string, opts ...Option) (*Client, error) {
	cfg := Config{Host: host, Port: port, Password: password}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Connect opens and authenticates a session if none is open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	return c.connectLocked(ctx)
}

// Connected reports whether an authenticated session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Execute runs a command and returns the full response text.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if len(command) > MaxPayloadSize {
		return "", newError(KindProtocol, "execute", ErrPayloadTooLarge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return "", err
		}
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	out, err := c.exchangeLocked(ctx, command)
	if err != nil {
		c.closeLocked()
		if ctxErr := ctx.Err(); ctxErr != nil && KindOf(err) == KindConnection {
			return "", newError(KindConnection, "execute", ctxErr)
		}
		return "", err
	}
	return out, nil
}

// Close closes the session. It is safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	log.Printf("[RCON] Closed session to %s", c.addr)
	return err
}

func (c *Client) credentials() (Credentials, error) {
	if c.cfg.Credentials == nil {
		return Credentials{Host: c.cfg.Host, Port: c.cfg.Port, Password: c.cfg.Password}, nil
	}
	creds, err := c.cfg.Credentials.Credentials()
	if err != nil {
		return Credentials{}, err
	}
	if creds.Host == "" {
		creds.Host = DefaultHost
	}
	if creds.Port == 0 {
		creds.Port = DefaultPort
	}
	return creds, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	creds, err := c.credentials()
	if errors.Is(err, ErrRconDisabled) || errors.Is(err, ErrNoPassword) {
		return newError(KindAuthentication, "credentials", err)
	}
	if err != nil {
		return fmt.Errorf("failed to load rcon credentials: %w", err)
	}

	c.addr = net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return newError(KindConnection, "connect", err)
	}
	c.conn = conn

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.authenticateLocked(ctx, creds.Password); err != nil {
		c.closeLocked()
		return err
	}

	log.Printf("[RCON] Authenticated session to %s", c.addr)
	return nil
}

func (c *Client) authenticateLocked(ctx context.Context, password string) error {
	id := c.nextID()
	if err := c.writePacket(ctx, Packet{ID: id, Type: TypeAuth, Payload: []byte(password)}); err != nil {
		return err
	}

	skipped := false
	for {
		p, _, err := c.readPacket(ctx, c.cfg.ReadTimeout)
		if err != nil {
			return err
		}

		switch {
		case p.ID == authFailedID:
			return newError(KindAuthentication, "auth", errors.New("server rejected rcon password"))
		case p.ID != id:
			return newError(KindProtocol, "auth", fmt.Errorf("auth response id %d does not match request id %d", p.ID, id))
		case p.Type == TypeResponseValue && !skipped:
			// Source servers send an empty RESPONSE_VALUE ahead of the auth response.
			skipped = true
		case p.Type == TypeAuthResponse:
			return nil
		default:
			return newError(KindProtocol, "auth", fmt.Errorf("unexpected packet type %d during auth", p.Type))
		}
	}
}

func (c *Client) exchangeLocked(ctx context.Context, command string) (string, error) {
	id := c.nextID()
	if err := c.writePacket(ctx, Packet{ID: id, Type: TypeExecCommand, Payload: []byte(command)}); err != nil {
		return "", err
	}

	sentinel := c.cfg.Fragmentation == FragmentSentinel
	var sentinelID int32

	var out bytes.Buffer
	received := 0
	for {
		timeout := c.cfg.ReadTimeout
		if !sentinel && received > 0 {
			timeout = c.cfg.FragmentWait
		}

		p, n, err := c.readPacket(ctx, timeout)
		if err != nil {
			if !sentinel && received > 0 && n == 0 && isTimeout(err) && ctx.Err() == nil {
				return out.String(), nil
			}
			return "", err
		}

		switch {
		case p.ID == id:
			if out.Len()+len(p.Payload) > maxResponseSize {
				return "", newError(KindProtocol, "execute", fmt.Errorf("response exceeds %d bytes", maxResponseSize))
			}
			out.Write(p.Payload)
			received++
			// Minecraft reads one packet per socket read, so the sentinel goes
			// out only once the command has been consumed.
			if sentinel && sentinelID == 0 {
				sentinelID = c.nextID()
				if err := c.writePacket(ctx, Packet{ID: sentinelID, Type: TypeResponseValue}); err != nil {
					return "", err
				}
			}
		case sentinel && sentinelID != 0 && p.ID == sentinelID:
			return out.String(), nil
		case p.ID == authFailedID:
			return "", newError(KindAuthentication, "execute", errors.New("session is no longer authenticated"))
		default:
			return "", newError(KindProtocol, "execute", fmt.Errorf("response id %d does not match request id %d", p.ID, id))
		}
	}
}

func (c *Client) nextID() int32 {
	c.lastID++
	if c.lastID <= 0 {
		c.lastID = 1
	}
	return c.lastID
}

func (c *Client) writePacket(ctx context.Context, p Packet) error {
	data, err := p.Encode()
	if err != nil {
		return newError(KindProtocol, "write", err)
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.cfg.ReadTimeout)); err != nil {
		return newError(KindConnection, "write", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return newError(KindConnection, "write", err)
	}
	return nil
}

// readPacket also reports how many bytes were consumed, so callers can tell an
// idle timeout from one that struck mid-packet.
func (c *Client) readPacket(ctx context.Context, timeout time.Duration) (Packet, int, error) {
	if err := c.conn.SetReadDeadline(deadline(ctx, timeout)); err != nil {
		return Packet{}, 0, newError(KindConnection, "read", err)
	}
	r := &countingReader{r: c.conn}
	p, err := ReadPacket(r)
	if err != nil && r.n > 0 && isTimeout(err) {
		return Packet{}, r.n, newError(KindProtocol, "read", fmt.Errorf("timed out mid-packet after %d bytes", r.n))
	}
	return p, r.n, err
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
