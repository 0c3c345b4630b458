// Package crypto implements the NaCl public-key and secret-key boxes used by
// SaltyRTC signaling.
//
// The package wraps golang.org/x/crypto/nacl so that the rest of the module
// only ever deals with a [KeyStore] (a long-lived Curve25519 key pair), a
// [Box] (nonce plus ciphertext) and an [AuthToken] (the one-time secretbox
// key shared out of band between initiator and responder).
//
// # Key Stores
//
// A key store can be generated, derived from a secret key or built from an
// explicit key pair. In every case the public key is the Curve25519
// derivative of the secret key; explicit pairs that do not satisfy this are
// rejected:
//
//	ks, err := crypto.NewKeyStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ks.Close() // wipes the secret key
//
//	fromSecret, err := crypto.NewKeyStoreFromSecretKeyHex(secretHex)
//
// # Encryption and Decryption
//
// Boxes are sealed for a peer's public key with a caller-supplied nonce.
// The caller owns nonce uniqueness; this package never tracks sequence
// numbers:
//
//	box, err := ks.Encrypt(plaintext, nonceBytes, peerPublicKey)
//	plaintext, err := ks.Decrypt(box, peerPublicKey)
//
// Malformed peer keys fail with protocol.ErrInvalidKey, authentication
// failures with protocol.ErrCrypto. Decryption never returns partial data.
//
// # Logging
//
// Key material is logged only as a short preview of public keys. Secret keys
// and auth tokens are never logged at any level.
package crypto
