package crypto

import (
	"bytes"
	"testing"
)

// FuzzEncryptDecrypt fuzzes the box round trip between two key stores
func FuzzEncryptDecrypt(f *testing.F) {
	f.Add([]byte("Hello, World!"))
	f.Add([]byte(""))
	f.Add(make([]byte, 100))

	sender, err := NewKeyStore()
	if err != nil {
		f.Fatal(err)
	}
	receiver, err := NewKeyStore()
	if err != nil {
		f.Fatal(err)
	}
	nonce := make([]byte, 24)

	f.Fuzz(func(t *testing.T, plaintext []byte) {
		if len(plaintext) > 10000 {
			return
		}
		b, err := sender.Encrypt(plaintext, nonce, receiver.PublicKey())
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		decrypted, err := receiver.Decrypt(b, sender.PublicKey())
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(plaintext, decrypted) {
			t.Errorf("Decryption mismatch: got %q, want %q", decrypted, plaintext)
		}
	})
}

// FuzzParseBox feeds arbitrary frames to the parser and the decrypter
func FuzzParseBox(f *testing.F) {
	f.Add(make([]byte, 24))
	f.Add(make([]byte, 23))
	f.Add(make([]byte, 64))

	keys, err := NewKeyStore()
	if err != nil {
		f.Fatal(err)
	}
	peer, err := NewKeyStore()
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, frame []byte) {
		b, err := ParseBox(frame)
		if err != nil {
			return
		}
		if !bytes.Equal(b.Bytes(), frame) {
			t.Errorf("Bytes() does not reproduce the frame")
		}
		// Random input must never authenticate.
		if _, err := keys.Decrypt(b, peer.PublicKey()); err == nil {
			t.Errorf("forged box decrypted")
		}
	})
}

// FuzzSecureWipe fuzzes the secure memory wiping function
func FuzzSecureWipe(f *testing.F) {
	f.Add([]byte("secret"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		if err := SecureWipe(buf); err != nil {
			t.Fatalf("SecureWipe: %v", err)
		}
		if !isZero(buf) {
			t.Errorf("data not wiped")
		}
	})
}
