package crypto

import "testing"

func TestVRFProveVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateVRFKeyPair()
	if err != nil {
		t.Fatalf("GenerateVRFKeyPair: %v", err)
	}
	alpha := []byte("candidate-message")
	pi, err := Prove(priv, pub, alpha)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(pi) != VRFProofLen {
		t.Fatalf("proof length = %d, want %d", len(pi), VRFProofLen)
	}
	beta, err := VRFVerify(pub, pi, alpha)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	direct, err := ProofToHash(pi)
	if err != nil {
		t.Fatalf("ProofToHash: %v", err)
	}
	if string(beta) != string(direct) {
		t.Fatal("Verify's output hash must match ProofToHash on the same proof")
	}
}

func TestVRFVerifyRejectsWrongMessage(t *testing.T) {
	priv, pub, _ := GenerateVRFKeyPair()
	pi, err := Prove(priv, pub, []byte("alpha"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if _, err := VRFVerify(pub, pi, []byte("different alpha")); err == nil {
		t.Fatal("Verify should reject a proof checked against the wrong message")
	}
}

func TestVRFVerifyRejectsWrongKey(t *testing.T) {
	priv, pub, _ := GenerateVRFKeyPair()
	_, otherPub, _ := GenerateVRFKeyPair()
	alpha := []byte("alpha")
	pi, err := Prove(priv, pub, alpha)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if _, err := VRFVerify(otherPub, pi, alpha); err == nil {
		t.Fatal("Verify should reject a proof checked against the wrong public key")
	}
}
