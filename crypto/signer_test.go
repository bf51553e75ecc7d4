package crypto_test

import (
	"errors"
	"testing"

	"github.com/sooomo/tally/crypto"
)

func TestEd25519Signer_SignVerify(t *testing.T) {
	pub, pri, err := crypto.NewEd25519KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	// 自己签自己验
	signer := crypto.NewEd25519Signer(pub, pri)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "text", data: []byte(`["", "hello", 4]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := signer.Sign(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if len(sig) != signer.Len() {
				t.Errorf("Sign(): len=%v, want=%v", len(sig), signer.Len())
			}
			if !signer.Verify(tt.data, sig) {
				t.Error("Verify() should accept own signature")
			}
			if signer.Verify(append(tt.data, 'x'), sig) {
				t.Error("Verify() should reject tampered data")
			}
			str, _ := signer.SignToString(tt.data)
			if !signer.VerifyFromString(tt.data, str) {
				t.Error("VerifyFromString() should accept own signature")
			}
		})
	}
}

func TestNewEd25519SignerFromString(t *testing.T) {
	pub, pri, _ := crypto.NewEd25519KeyPair()
	signer, err := crypto.NewEd25519SignerFromString(crypto.Base64Encode(pub), crypto.Base64Encode(pri))
	if err != nil {
		t.Fatal(err)
	}
	sig, _ := signer.Sign([]byte("x"))
	if !signer.Verify([]byte("x"), sig) {
		t.Error("Verify() after string init failed")
	}

	if _, err := crypto.NewEd25519SignerFromString("%%%", ""); err == nil {
		t.Error("NewEd25519SignerFromString(): want error for bad base64")
	}
}

func TestNewEd25519SignerFromString_KeyLength(t *testing.T) {
	pub, pri, _ := crypto.NewEd25519KeyPair()
	short := crypto.Base64Encode([]byte("abc"))
	tests := []struct {
		name string
		pub  string
		pri  string
	}{
		{name: "short_private", pub: crypto.Base64Encode(pub), pri: short},
		{name: "short_public", pub: short, pri: crypto.Base64Encode(pri)},
		{name: "swapped", pub: crypto.Base64Encode(pri), pri: crypto.Base64Encode(pub)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.NewEd25519SignerFromString(tt.pub, tt.pri)
			if !errors.Is(err, crypto.ErrBadKeyLength) {
				t.Errorf("NewEd25519SignerFromString(): err=%v, want=%v", err, crypto.ErrBadKeyLength)
			}
		})
	}
}

func TestDigest(t *testing.T) {
	a := crypto.Digest([]byte(`["a"]`))
	b := crypto.Digest([]byte(`["a"]`))
	c := crypto.Digest([]byte(`["b"]`))
	if a != b {
		t.Errorf("Digest(): not stable, %v != %v", a, b)
	}
	if a == c {
		t.Error("Digest(): different input, same digest")
	}
	if len(a) != 64 {
		t.Errorf("Digest(): len=%v, want=%v", len(a), 64)
	}
}

func TestEd25519Signer_SignBadKey(t *testing.T) {
	signer := crypto.NewEd25519Signer(nil, []byte("abc"))
	if _, err := signer.Sign([]byte("x")); !errors.Is(err, crypto.ErrBadKeyLength) {
		t.Errorf("Sign(): err=%v, want=%v", err, crypto.ErrBadKeyLength)
	}
	if _, err := signer.SignToString([]byte("x")); !errors.Is(err, crypto.ErrBadKeyLength) {
		t.Errorf("SignToString(): err=%v, want=%v", err, crypto.ErrBadKeyLength)
	}
}
