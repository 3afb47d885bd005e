package gcrypto

import "fmt"

// SchnorrProof is a non-interactive proof of knowledge of x such that X = x*G.
//
// The statement is bound to arbitrary context messages (caller identity, contract,
// ciphertext bytes, ...) through the Fiat-Shamir transcript, so a proof produced for
// one context does not verify under another.
type SchnorrProof struct {
	// a = w*G
	A Point
	// s = w + e*x
	S Scalar
}

const SchnorrProofBytes = PointBytes + ScalarBytes

func schnorrChallenge(domain string, x Point, a Point, bind [][]byte) (Scalar, error) {
	tr := NewTranscript(domain)
	if err := tr.AppendMessage("X", x.Bytes()); err != nil {
		return Scalar{}, err
	}
	if err := tr.AppendMessage("A", a.Bytes()); err != nil {
		return Scalar{}, err
	}
	for _, m := range bind {
		if err := tr.AppendMessage("bind", m); err != nil {
			return Scalar{}, err
		}
	}
	return tr.ChallengeScalar("e")
}

func SchnorrProve(domain string, x Scalar, w Scalar, bind ...[]byte) (SchnorrProof, error) {
	if w.IsZero() {
		return SchnorrProof{}, fmt.Errorf("schnorr: w must be non-zero")
	}
	X := MulBase(x)
	a := MulBase(w)
	e, err := schnorrChallenge(domain, X, a, bind)
	if err != nil {
		return SchnorrProof{}, err
	}
	return SchnorrProof{A: a, S: ScalarAdd(w, ScalarMul(e, x))}, nil
}

func SchnorrVerify(domain string, X Point, proof SchnorrProof, bind ...[]byte) (bool, error) {
	e, err := schnorrChallenge(domain, X, proof.A, bind)
	if err != nil {
		return false, err
	}
	// Check: s*G == a + e*X
	lhs := MulBase(proof.S)
	rhs := PointAdd(proof.A, MulPoint(X, e))
	return PointEq(lhs, rhs), nil
}

// Encoding: A(32) || s(32 le)
func EncodeSchnorrProof(p SchnorrProof) []byte {
	return concatBytes(p.A.Bytes(), p.S.Bytes())
}

func DecodeSchnorrProof(b []byte) (SchnorrProof, error) {
	if len(b) != SchnorrProofBytes {
		return SchnorrProof{}, fmt.Errorf("schnorr: expected %d bytes", SchnorrProofBytes)
	}
	a, err := PointFromBytesCanonical(b[:PointBytes])
	if err != nil {
		return SchnorrProof{}, err
	}
	s, err := ScalarFromBytesCanonical(b[PointBytes:])
	if err != nil {
		return SchnorrProof{}, err
	}
	return SchnorrProof{A: a, S: s}, nil
}
