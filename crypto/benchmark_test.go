package crypto

import (
	"testing"
)

// BenchmarkNewKeyStore measures key pair generation performance
func BenchmarkNewKeyStore(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ks, err := NewKeyStore()
		if err != nil {
			b.Fatal(err)
		}
		ks.Close()
	}
}

func benchmarkPair(b *testing.B) (*KeyStore, *KeyStore) {
	b.Helper()
	sender, err := NewKeyStore()
	if err != nil {
		b.Fatal(err)
	}
	receiver, err := NewKeyStore()
	if err != nil {
		b.Fatal(err)
	}
	return sender, receiver
}

// BenchmarkEncrypt measures box sealing of a typical signaling message
func BenchmarkEncrypt(b *testing.B) {
	sender, receiver := benchmarkPair(b)
	nonce := make([]byte, 24)
	msg := make([]byte, 256)
	peer := receiver.PublicKey()

	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sender.Encrypt(msg, nonce, peer); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecrypt measures box opening of a typical signaling message
func BenchmarkDecrypt(b *testing.B) {
	sender, receiver := benchmarkPair(b)
	box, err := sender.Encrypt(make([]byte, 256), make([]byte, 24), receiver.PublicKey())
	if err != nil {
		b.Fatal(err)
	}
	peer := sender.PublicKey()

	b.SetBytes(256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := receiver.Decrypt(box, peer); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAuthToken measures the secretbox round trip of a token message
func BenchmarkAuthToken(b *testing.B) {
	token, err := NewAuthToken()
	if err != nil {
		b.Fatal(err)
	}
	nonce := make([]byte, 24)
	msg := make([]byte, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		box, err := token.Encrypt(msg, nonce)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := token.Decrypt(box); err != nil {
			b.Fatal(err)
		}
	}
}
