package gcrypto

import (
	"crypto/rand"
	"testing"
)

func TestSchnorr_ProveVerify(t *testing.T) {
	x := ScalarFromUint64(1234567)
	w := ScalarFromUint64(99)
	X := MulBase(x)

	proof, err := SchnorrProve("test/pok", x, w, []byte("alice"), []byte("contract"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	ok, err := SchnorrVerify("test/pok", X, proof, []byte("alice"), []byte("contract"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected proof to verify")
	}

	decoded, err := DecodeSchnorrProof(EncodeSchnorrProof(proof))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ok, _ = SchnorrVerify("test/pok", X, decoded, []byte("alice"), []byte("contract"))
	if !ok {
		t.Fatalf("expected decoded proof to verify")
	}
}

func TestSchnorr_RejectsOtherBinding(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	w, err := RandomScalar(rand.Reader)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	proof, err := SchnorrProve("test/pok", kp.Secret, w, []byte("alice"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	cases := []struct {
		name   string
		domain string
		bind   []byte
	}{
		{"other caller", "test/pok", []byte("bob")},
		{"other domain", "test/other", []byte("alice")},
	}
	for _, tc := range cases {
		ok, err := SchnorrVerify(tc.domain, kp.Public, proof, tc.bind)
		if err != nil {
			t.Fatalf("%s: verify: %v", tc.name, err)
		}
		if ok {
			t.Fatalf("%s: expected proof to be rejected", tc.name)
		}
	}

	other := MulBase(ScalarFromUint64(5))
	if ok, _ := SchnorrVerify("test/pok", other, proof, []byte("alice")); ok {
		t.Fatalf("expected proof to be rejected for a different public key")
	}
}

func TestSchnorr_ZeroNonceRejected(t *testing.T) {
	if _, err := SchnorrProve("test/pok", ScalarFromUint64(1), ScalarFromUint64(0)); err == nil {
		t.Fatalf("expected error for zero nonce")
	}
	if _, err := DecodeSchnorrProof(make([]byte, 10)); err == nil {
		t.Fatalf("expected decode error for short proof")
	}
}

func TestTranscript_DeterministicAndLabelSensitive(t *testing.T) {
	challenge := func(label string) Scalar {
		tr := NewTranscript("test/transcript")
		_ = tr.AppendMessage(label, []byte{1, 2, 3})
		e, err := tr.ChallengeScalar("e")
		if err != nil {
			t.Fatalf("challenge: %v", err)
		}
		return e
	}
	a := challenge("m")
	b := challenge("m")
	c := challenge("n")
	if string(a.Bytes()) != string(b.Bytes()) {
		t.Fatalf("expected deterministic challenge")
	}
	if string(a.Bytes()) == string(c.Bytes()) {
		t.Fatalf("expected label to change the challenge")
	}
}
