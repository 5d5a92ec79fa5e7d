// Package dialer provides TLS dialers for securing the stream between a
// remote worker and the scheduler host it serves. A pinned dialer is meant
// to be plugged into the remote worker service's Dialer hook in place of
// the default plain TCP dial.
package dialer

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"net"

	"golang.org/x/xerrors"
)

// Dialer is a function for creating connections. net.Dial satisfies it, as
// do the TLS dialers returned by WithPinnedCertVerification.
type Dialer func(network, addr string) (net.Conn, error)

// Fingerprint returns the SHA256 digest of the certificate's public key in
// PKIX form. This is the value to pin on the worker side.
func Fingerprint(cert *x509.Certificate) ([]byte, error) {
	pkDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("unable to serialize certificate public key: %w", err)
	}
	digest := sha256.Sum256(pkDER)
	return digest[:], nil
}

// WithPinnedCertVerification returns a TLS dialer that refuses the
// connection unless the peer presents a certificate whose public-key
// fingerprint matches the provided value. Pinning protects worker streams
// that carry plaintext operand values from man-in-the-middle interception
// without requiring a CA chain on every worker host.
func WithPinnedCertVerification(pkFingerprint []byte, tlsConfig *tls.Config) Dialer {
	return func(network, addr string) (net.Conn, error) {
		conn, err := tls.Dial(network, addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		if err := verifyPinnedCert(pkFingerprint, conn.ConnectionState().PeerCertificates); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// verifyPinnedCert checks whether any certificate in the presented chain
// carries a public key matching the pinned fingerprint.
func verifyPinnedCert(pkFingerprint []byte, certificates []*x509.Certificate) error {
	for _, cert := range certificates {
		fingerprint, err := Fingerprint(cert)
		if err != nil {
			return err
		}
		if bytes.Equal(fingerprint, pkFingerprint) {
			return nil
		}
	}
	return xerrors.Errorf("remote host presented a certificate which does not match the pinned fingerprint")
}
