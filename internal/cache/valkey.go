package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider speaks RESP2 over a small pool of authenticated connections.
// Keys are namespaced with KeyPrefix so several deployments can share a server.
type ValkeyProvider struct {
	cfg  ValkeyConfig
	idle chan *valkeyConn
}

// ErrValkey wraps error replies returned by the server.
var ErrValkey = errors.New("valkey error reply")

// NewValkeyProvider dials the server once with PING so misconfiguration
// surfaces at startup.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	cfg = withValkeyDefaults(cfg)
	p := &ValkeyProvider{cfg: cfg, idle: make(chan *valkeyConn, cfg.PoolSize)}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	reply, err := p.do(ctx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if reply.kind != '+' || string(reply.data) != "PONG" {
		return nil, fmt.Errorf("valkey ping: unexpected reply %q", reply.data)
	}
	return p, nil
}

func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.do(ctx, "GET", p.key(key))
	if err != nil {
		return nil, err
	}
	if reply.null {
		return nil, ErrCacheMiss
	}
	if reply.kind != '$' {
		return nil, fmt.Errorf("valkey GET: unexpected reply type %q", reply.kind)
	}
	return reply.data, nil
}

func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	reply, err := p.do(ctx, setArgs(p.key(key), value, ttl)...)
	if err != nil {
		return err
	}
	if reply.kind != '+' {
		return fmt.Errorf("valkey SET: unexpected reply %q", reply.data)
	}
	return nil
}

func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := append(setArgs(p.key(key), value, ttl), "NX")
	reply, err := p.do(ctx, args...)
	if err != nil {
		return false, err
	}
	if reply.null {
		return false, nil
	}
	return reply.kind == '+', nil
}

func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", p.key(key))
	return err
}

// Close drains and closes pooled connections.
func (p *ValkeyProvider) Close() error {
	for {
		select {
		case vc := <-p.idle:
			_ = vc.conn.Close()
		default:
			return nil
		}
	}
}

func (p *ValkeyProvider) key(k string) string {
	return p.cfg.KeyPrefix + k
}

func setArgs(key string, value []byte, ttl time.Duration) []string {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	return args
}

// do runs one command, retrying transient network failures on a fresh
// connection. Server error replies are not retried.
func (p *ValkeyProvider) do(ctx context.Context, args ...string) (valkeyReply, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return valkeyReply{}, err
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return valkeyReply{}, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 25 * time.Millisecond):
			}
		}

		vc, err := p.acquire(ctx)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return valkeyReply{}, err
		}
		reply, err := vc.roundTrip(ctx, p.cfg, args)
		if err != nil && !errors.Is(err, ErrValkey) {
			_ = vc.conn.Close()
			lastErr = err
			if retryable(err) {
				continue
			}
			return valkeyReply{}, err
		}
		p.release(vc)
		return reply, err
	}
	return valkeyReply{}, lastErr
}

func (p *ValkeyProvider) acquire(ctx context.Context) (*valkeyConn, error) {
	select {
	case vc := <-p.idle:
		return vc, nil
	default:
	}

	dialer := net.Dialer{Timeout: boundedTimeout(ctx, p.cfg.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(p.cfg.Addr)
		if splitErr != nil {
			host = p.cfg.Addr
		}
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}

	vc := &valkeyConn{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
	if err := p.handshake(ctx, vc); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return vc, nil
}

func (p *ValkeyProvider) release(vc *valkeyConn) {
	select {
	case p.idle <- vc:
	default:
		_ = vc.conn.Close()
	}
}

func (p *ValkeyProvider) handshake(ctx context.Context, vc *valkeyConn) error {
	if p.cfg.Password != "" {
		auth := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if _, err := vc.roundTrip(ctx, p.cfg, auth); err != nil {
			return fmt.Errorf("valkey auth: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if _, err := vc.roundTrip(ctx, p.cfg, []string{"SELECT", strconv.Itoa(p.cfg.DB)}); err != nil {
			return fmt.Errorf("valkey select %d: %w", p.cfg.DB, err)
		}
	}
	return nil
}

type valkeyReply struct {
	kind byte
	data []byte
	null bool
}

type valkeyConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func (vc *valkeyConn) roundTrip(ctx context.Context, cfg ValkeyConfig, args []string) (valkeyReply, error) {
	if err := vc.conn.SetWriteDeadline(time.Now().Add(boundedTimeout(ctx, cfg.WriteTimeout))); err != nil {
		return valkeyReply{}, err
	}
	fmt.Fprintf(vc.w, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(vc.w, "$%d\r\n%s\r\n", len(a), a)
	}
	if err := vc.w.Flush(); err != nil {
		return valkeyReply{}, err
	}

	if err := vc.conn.SetReadDeadline(time.Now().Add(boundedTimeout(ctx, cfg.ReadTimeout))); err != nil {
		return valkeyReply{}, err
	}
	return vc.readReply()
}

func (vc *valkeyConn) readReply() (valkeyReply, error) {
	kind, err := vc.r.ReadByte()
	if err != nil {
		return valkeyReply{}, err
	}
	line, err := vc.readLine()
	if err != nil {
		return valkeyReply{}, err
	}

	switch kind {
	case '+', ':':
		return valkeyReply{kind: kind, data: line}, nil
	case '-':
		return valkeyReply{kind: kind, data: line}, fmt.Errorf("%w: %s", ErrValkey, line)
	case '_':
		return valkeyReply{kind: kind, null: true}, nil
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return valkeyReply{}, fmt.Errorf("valkey bulk length %q: %w", line, err)
		}
		if size < 0 {
			return valkeyReply{kind: kind, null: true}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(vc.r, buf); err != nil {
			return valkeyReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return valkeyReply{}, errors.New("valkey: bulk string missing CRLF")
		}
		return valkeyReply{kind: kind, data: buf[:size]}, nil
	default:
		return valkeyReply{}, fmt.Errorf("valkey: unexpected RESP prefix %q", kind)
	}
}

func (vc *valkeyConn) readLine() ([]byte, error) {
	line, err := vc.r.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errors.New("valkey: line missing CRLF")
	}
	return append([]byte(nil), line[:len(line)-2]...), nil
}

func withValkeyDefaults(cfg ValkeyConfig) ValkeyConfig {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	return cfg
}

// boundedTimeout returns d, shortened to the context deadline when that is sooner.
func boundedTimeout(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if remaining < d {
			return remaining
		}
	}
	return d
}

func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
