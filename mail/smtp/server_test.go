package smtp

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// generateTestCert generates a self-signed certificate for testing
func generateTestCert(t *testing.T) tls.Certificate {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test SMTP"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	privBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}),
	)
	require.NoError(t, err)

	return cert
}

// serverOptions shape the replies of the fake server.
type serverOptions struct {
	starttls  bool
	authReply string // defaults to 235
	rcptReply string // defaults to 250
	dataReply string // reply to the final dot, defaults to 250
}

// fakeServer is a minimal SMTP server that records what clients send.
type fakeServer struct {
	listener net.Listener
	cert     tls.Certificate
	opts     serverOptions

	mu       sync.Mutex
	messages []string
	commands []string
	tlsUsed  bool
}

func startFakeServer(t *testing.T, opts serverOptions) *fakeServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen")

	if opts.authReply == "" {
		opts.authReply = "235 2.7.0 Authentication successful"
	}
	if opts.rcptReply == "" {
		opts.rcptReply = "250 OK"
	}
	if opts.dataReply == "" {
		opts.dataReply = "250 OK queued"
	}

	s := &fakeServer{listener: listener, opts: opts}
	if opts.starttls {
		s.cert = generateTestCert(t)
	}

	go s.run()
	t.Cleanup(s.close)

	return s
}

func (s *fakeServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) run() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *fakeServer) record(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
}

func (s *fakeServer) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	reply := func(lines ...string) {
		for _, l := range lines {
			writer.WriteString(l + "\r\n")
		}
		writer.Flush()
	}

	reply("220 localhost ESMTP Test Server")

	secured := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)
		s.record(strings.SplitN(upper, " ", 2)[0])

		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			if s.opts.starttls && !secured {
				reply("250-localhost", "250-STARTTLS", "250 AUTH PLAIN")
			} else {
				reply("250-localhost", "250 AUTH PLAIN")
			}
		case upper == "STARTTLS" && s.opts.starttls:
			reply("220 Ready to start TLS")

			tlsConn := tls.Server(conn, &tls.Config{
				Certificates: []tls.Certificate{s.cert},
				MinVersion:   tls.VersionTLS12,
			})
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			secured = true
			s.mu.Lock()
			s.tlsUsed = true
			s.mu.Unlock()

			conn = tlsConn
			reader = bufio.NewReader(tlsConn)
			writer = bufio.NewWriter(tlsConn)
		case strings.HasPrefix(upper, "AUTH PLAIN"):
			reply(s.opts.authReply)
		case strings.HasPrefix(upper, "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			reply(s.opts.rcptReply)
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")

			var msg strings.Builder
			for {
				l, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				msg.WriteString(strings.TrimPrefix(l, "."))
			}

			s.mu.Lock()
			s.messages = append(s.messages, msg.String())
			s.mu.Unlock()
			reply(s.opts.dataReply)
		case upper == "QUIT":
			reply("221 Bye")
			return
		case upper == "NOOP", upper == "RSET":
			reply("250 OK")
		default:
			reply("500 Syntax error")
		}
	}
}

func (s *fakeServer) close() {
	s.listener.Close()
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *fakeServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeServer) usedTLS() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tlsUsed
}
