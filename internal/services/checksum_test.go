package services

import (
	"bytes"
	"testing"

	"github.com/lsst-dm/imgcrawl/internal/testutil"
)

func TestComputeChecksum_KnownDigest(t *testing.T) {
	// SHA-256("abc"), a fixed reference vector.
	path := testutil.WriteTempFile(t, "abc.dat", []byte("abc"))

	checksum, size, err := ComputeChecksum(path)
	if err != nil {
		t.Fatalf("ComputeChecksum() error = %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if checksum != want {
		t.Errorf("checksum = %s, want %s", checksum, want)
	}
	if size != 3 {
		t.Errorf("size = %d, want 3", size)
	}
}

func TestComputeChecksum_EmptyFile(t *testing.T) {
	path := testutil.WriteTempFile(t, "empty.dat", nil)

	checksum, size, err := ComputeChecksum(path)
	if err != nil {
		t.Fatalf("ComputeChecksum() error = %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if checksum != want {
		t.Errorf("checksum = %s, want %s", checksum, want)
	}
	if size != 0 {
		t.Errorf("size = %d, want 0", size)
	}
}

func TestComputeChecksum_Deterministic(t *testing.T) {
	contents := bytes.Repeat([]byte{0x42}, 2048)
	a := testutil.WriteTempFile(t, "a.fits", contents)
	b := testutil.WriteTempFile(t, "b.fits", contents)

	sumA, sizeA, err := ComputeChecksum(a)
	if err != nil {
		t.Fatal(err)
	}
	sumB, sizeB, err := ComputeChecksum(b)
	if err != nil {
		t.Fatal(err)
	}

	if sumA != sumB {
		t.Errorf("identical contents produced different checksums: %s vs %s", sumA, sumB)
	}
	if sizeA != 2048 || sizeB != 2048 {
		t.Errorf("sizes = %d, %d, want 2048", sizeA, sizeB)
	}
}

func TestComputeChecksum_MissingFile(t *testing.T) {
	_, _, err := ComputeChecksum("/nonexistent/path/file.fits")
	if err == nil {
		t.Fatal("ComputeChecksum() on missing file should fail")
	}
}
