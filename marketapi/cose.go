package marketapi

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/veraison/go-cose"
)

var ErrSignature = errors.New("measurement signature verification failed")

// SignMeasurement wraps a CBOR measurement in a COSE_Sign1 message signed with
// ES256 (ECDSA P-256 with SHA-256).
func SignMeasurement(m MeasurementMessage, key *ecdsa.PrivateKey) (Frame, error) {
	payload, err := EncodeMeasurement(m)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("sign measurement: %w", err)
	}

	data, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("marshal COSE_Sign1: %w", err)
	}
	return data, nil
}

// VerifyMeasurement checks the ES256 signature of a COSE_Sign1 frame and decodes
// its payload.
func VerifyMeasurement(frame Frame, pub *ecdsa.PublicKey) (MeasurementMessage, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(frame); err != nil {
		var untagged cose.UntaggedSign1Message
		if err := untagged.UnmarshalCBOR(frame); err != nil {
			return MeasurementMessage{}, fmt.Errorf("parse COSE_Sign1: %w", err)
		}
		msg = cose.Sign1Message(untagged)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return MeasurementMessage{}, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return MeasurementMessage{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	return DecodeMeasurement(msg.Payload)
}

// GenerateKey creates a P-256 signing key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return key, nil
}

// PublicKeyPEM returns the public key in PEM format.
func PublicKeyPEM(pub *ecdsa.PublicKey) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes})), nil
}

// PrivateKeyPEM returns the private key as a PKCS#8 PEM block.
func PrivateKeyPEM(key *ecdsa.PrivateKey) (string, error) {
	derBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: derBytes})), nil
}

// ParsePublicKeyPEM reads a PKIX ECDSA public key.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecKey, nil
}

// ParsePrivateKeyPEM reads a PKCS#8 or SEC 1 ECDSA private key.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not ECDSA")
	}
	return ecKey, nil
}
