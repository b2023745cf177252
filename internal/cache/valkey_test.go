package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeValkey is a single-database RESP2 server covering the commands the
// provider issues.
type fakeValkey struct {
	ln       net.Listener
	password string

	mu       sync.Mutex
	data     map[string]string
	commands []string
}

func startFakeValkey(t *testing.T, password string) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeValkey{ln: ln, password: password, data: map[string]string{}}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	authed := f.password == ""
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, strings.Join(args, " "))
		cmd := strings.ToUpper(args[0])
		var out string
		switch {
		case cmd == "AUTH":
			if args[len(args)-1] == f.password {
				authed = true
				out = "+OK\r\n"
			} else {
				out = "-WRONGPASS invalid password\r\n"
			}
		case !authed:
			out = "-NOAUTH Authentication required\r\n"
		case cmd == "PING":
			out = "+PONG\r\n"
		case cmd == "GET":
			if v, ok := f.data[args[1]]; ok {
				out = fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
			} else {
				out = "$-1\r\n"
			}
		case cmd == "SET":
			nx := strings.EqualFold(args[len(args)-1], "NX")
			if _, exists := f.data[args[1]]; nx && exists {
				out = "$-1\r\n"
			} else {
				f.data[args[1]] = args[2]
				out = "+OK\r\n"
			}
		case cmd == "DEL":
			delete(f.data, args[1])
			out = ":1\r\n"
		default:
			out = "-ERR unknown command\r\n"
		}
		f.mu.Unlock()
		if _, err := io.WriteString(conn, out); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "*")))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(sizeLine, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (f *fakeValkey) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeValkey) sawCommand(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	srv := startFakeValkey(t, "")
	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.ln.Addr().String(), KeyPrefix: "hotspot:"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := p.Get(ctx, "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := p.Set(ctx, "snap", []byte("payload with spaces"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok := srv.value("hotspot:snap"); !ok || v != "payload with spaces" {
		t.Fatalf("server stored %q (%v), want prefixed key", v, ok)
	}
	if !srv.sawCommand("SET hotspot:snap payload with spaces PX 60000") {
		t.Fatal("expected SET with PX ttl")
	}
	got, err := p.Get(ctx, "snap")
	if err != nil || string(got) != "payload with spaces" {
		t.Fatalf("get = %q, %v", got, err)
	}

	ok, err := p.SetNX(ctx, "snap", []byte("other"), 0)
	if err != nil || ok {
		t.Fatalf("SetNX on existing key = %v, %v", ok, err)
	}
	if err := p.Del(ctx, "snap"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, err = p.SetNX(ctx, "snap", []byte("other"), 0)
	if err != nil || !ok {
		t.Fatalf("SetNX after delete = %v, %v", ok, err)
	}
}

func TestValkeyProviderAuth(t *testing.T) {
	srv := startFakeValkey(t, "s3cret")

	if _, err := NewValkeyProvider(ValkeyConfig{Addr: srv.ln.Addr().String(), Password: "wrong"}); err == nil {
		t.Fatal("expected auth failure")
	}
	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.ln.Addr().String(), Password: "s3cret"})
	if err != nil {
		t.Fatalf("auth with correct password: %v", err)
	}
	_ = p.Close()
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
