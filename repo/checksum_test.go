package repo

import (
	"crypto/sha256"
	"testing"
)

func TestSha256FactoryMatchesStdlib(t *testing.T) {
	data := []byte("hello, world")

	sum := Sha256Factory{}.New()
	if _, err := sum.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := sum.Sum()

	want := sha256.Sum256(data)
	if len(got) != len(want) {
		t.Fatalf("checksum length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("checksum mismatch: got %x want %x", got, want)
		}
	}
}

func TestSha256FactoryFreshInstancePerCall(t *testing.T) {
	f := Sha256Factory{}
	a := f.New()
	b := f.New()
	a.Write([]byte("one"))
	b.Write([]byte("two"))
	if a.Sum() == b.Sum() {
		t.Error("two independent checksums over different data must not match")
	}
}
