package quic

import (
	"testing"

	"portbus/pkg/transport"
	"portbus/pkg/transport/transporttest"
)

func TestRoundTrip(t *testing.T) {
	transporttest.RoundTrip(t, New(), "127.0.0.1:0", func(l transport.Listener) string { return l.Addr().String() })
}

func TestCloseUnblocksAccept(t *testing.T) {
	transporttest.CloseUnblocksAccept(t, New(), "127.0.0.1:0")
}

func TestSelfSignedCert(t *testing.T) {
	tr := New()
	conf, err := tr.serverTLS()
	if err != nil {
		t.Fatalf("server tls: %v", err)
	}
	if len(conf.Certificates) != 1 || conf.NextProtos[0] != ALPN {
		t.Fatalf("unexpected tls config: %+v", conf)
	}
	again, _ := tr.serverTLS()
	if &again.Certificates[0].Certificate[0][0] != &conf.Certificates[0].Certificate[0][0] {
		t.Fatalf("certificate regenerated")
	}
}
