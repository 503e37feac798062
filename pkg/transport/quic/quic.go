// Package quic is the QUIC bootstrap transport. Each connection carries one
// bidirectional stream, opened by the dialer; the listener learns about it
// when the first bytes arrive, which is always the dialer's header.
package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"portbus/pkg/stream"
	"portbus/pkg/transport"
)

// ALPN is the protocol name both ends negotiate.
const ALPN = "portbus"

// Transport implements QUIC-based bootstrap streams. The server certificate
// is self-signed and generated on first Listen; clients do not verify it,
// since the bootstrap link carries no identity of its own.
type Transport struct {
	quicConf *quicgo.Config

	certOnce sync.Once
	cert     tls.Certificate
	certErr  error
}

func New() *Transport {
	return &Transport{quicConf: &quicgo.Config{
		KeepAlivePeriod: 10 * time.Second,
	}}
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) serverTLS() (*tls.Config, error) {
	t.certOnce.Do(func() { t.cert, t.certErr = selfSignedCert() })
	if t.certErr != nil {
		return nil, t.certErr
	}
	return &tls.Config{
		Certificates: []tls.Certificate{t.cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	tlsConf, err := t.serverTLS()
	if err != nil {
		return nil, err
	}
	l, err := quicgo.ListenAddr(address, tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	lctx, cancel := context.WithCancel(ctx)
	ql := &listener{l: l, q: transport.NewQueue(), cancel: cancel}
	go ql.acceptLoop(lctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = ql.Close()
		case <-ql.q.Done():
		}
	}()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (stream.Stream, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	s, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "")
		return nil, err
	}
	return stream.NewConn(&conn{c: c, s: s}), nil
}

type listener struct {
	l         *quicgo.Listener
	q         *transport.Queue
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (stream.Stream, error) { return l.q.Accept(ctx) }

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.q.Close()
		l.closeErr = l.l.Close()
	})
	return l.closeErr
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		go l.awaitStream(ctx, c)
	}
}

// awaitStream waits for the dialer's stream without holding up other
// connections.
func (l *listener) awaitStream(ctx context.Context, c quicgo.Connection) {
	s, err := c.AcceptStream(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "")
		return
	}
	l.q.Push(stream.NewConn(&conn{c: c, s: s}))
}

// conn presents one QUIC stream as a net.Conn. Closing it closes the whole
// QUIC connection.
type conn struct {
	c    quicgo.Connection
	s    quicgo.Stream
	once sync.Once
}

func (c *conn) Read(p []byte) (int, error)  { return c.s.Read(p) }
func (c *conn) Write(p []byte) (int, error) { return c.s.Write(p) }

func (c *conn) Close() error {
	c.once.Do(func() {
		c.s.CancelRead(0)
		_ = c.s.Close()
		_ = c.c.CloseWithError(0, "")
	})
	return nil
}

func (c *conn) LocalAddr() net.Addr                { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr               { return c.c.RemoteAddr() }
func (c *conn) SetDeadline(t time.Time) error      { return c.s.SetDeadline(t) }
func (c *conn) SetReadDeadline(t time.Time) error  { return c.s.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.s.SetWriteDeadline(t) }

// selfSignedCert generates a short-lived self-signed certificate.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
