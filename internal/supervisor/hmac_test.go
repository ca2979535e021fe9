package supervisor

import (
	"net"
	"testing"
)

func TestHMACAuthRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	auth := NewHMACAuth(secret)

	errCh := make(chan error, 1)
	go func() { errCh <- auth.AuthenticateServer(serverConn) }()

	if err := auth.AuthenticateClient(clientConn); err != nil {
		t.Fatalf("AuthenticateClient: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("AuthenticateServer: %v", err)
	}
}

func TestHMACAuthRejectsWrongSecret(t *testing.T) {
	serverSecret, _ := GenerateSecret()
	clientSecret, _ := GenerateSecret()

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverAuth := NewHMACAuth(serverSecret)
	clientAuth := NewHMACAuth(clientSecret)

	errCh := make(chan error, 1)
	go func() { errCh <- serverAuth.AuthenticateServer(serverConn) }()

	clientErr := clientAuth.AuthenticateClient(clientConn)
	serverErr := <-errCh

	if clientErr == nil && serverErr == nil {
		t.Fatal("expected authentication to fail when client and server secrets differ")
	}
}
