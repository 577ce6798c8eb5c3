package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICALPN is the application protocol negotiated on DNP3 QUIC connections
const QUICALPN = "dnp3-quic"

// QUICChannelConfig configures a QUIC listener
type QUICChannelConfig struct {
	Address      string        // "host:port" format
	ReadTimeout  time.Duration // Read timeout (0 = no timeout)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
	TLSConfig    *tls.Config   // Optional TLS config (if nil, will generate self-signed cert)
	IdleTimeout  time.Duration // QUIC idle timeout (0 = quic-go default)
}

// QUICListener accepts masters over QUIC. Each connection carries the DNP3
// byte stream on the first stream the master opens.
type QUICListener struct {
	udpConn  *net.UDPConn
	listener *quic.Listener
	config   QUICChannelConfig
}

// ListenQUIC binds the configured UDP address
func ListenQUIC(config QUICChannelConfig) (*QUICListener, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.TLSConfig == nil {
		tlsConfig, err := generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
		config.TLSConfig = tlsConfig
	}

	udpAddr, err := net.ResolveUDPAddr("udp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", config.Address, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Address, err)
	}

	var quicConfig *quic.Config
	if config.IdleTimeout > 0 {
		quicConfig = &quic.Config{MaxIdleTimeout: config.IdleTimeout, KeepAlivePeriod: config.IdleTimeout / 2}
	}
	listener, err := quic.Listen(udpConn, config.TLSConfig, quicConfig)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to create QUIC listener: %w", err)
	}

	return &QUICListener{udpConn: udpConn, listener: listener, config: config}, nil
}

// Accept implements Listener.Accept
func (ql *QUICListener) Accept(ctx context.Context) (PhysicalChannel, error) {
	for {
		conn, err := ql.listener.Accept(ctx)
		if err != nil {
			return nil, err
		}

		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			conn.CloseWithError(0, "no stream")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		return NewStreamChannel(&quicStream{Stream: stream, conn: conn}, StreamConfig{
			ReadTimeout:  ql.config.ReadTimeout,
			WriteTimeout: ql.config.WriteTimeout,
			Local:        conn.LocalAddr(),
			Remote:       conn.RemoteAddr(),
		}), nil
	}
}

// Addr implements Listener.Addr
func (ql *QUICListener) Addr() net.Addr {
	return ql.listener.Addr()
}

// Close implements Listener.Close
func (ql *QUICListener) Close() error {
	err := ql.listener.Close()
	ql.udpConn.Close()
	return err
}

// quicStream closes the whole connection along with its stream
type quicStream struct {
	*quic.Stream
	conn *quic.Conn
}

func (s *quicStream) Close() error {
	s.Stream.CancelRead(0)
	err := s.Stream.Close()
	s.conn.CloseWithError(0, "channel closed")
	return err
}

// generateTLSConfig generates a self-signed certificate for QUIC
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{QUICALPN},
	}, nil
}
