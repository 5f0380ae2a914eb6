package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewKeyMaterialStore(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("test-password-123")

	ks, err := NewKeyMaterialStore(tempDir, password)
	if err != nil {
		t.Fatalf("Failed to create key store: %v", err)
	}
	defer ks.Close()

	saltPath := filepath.Join(tempDir, ".salt")
	if _, err := os.Stat(saltPath); os.IsNotExist(err) {
		t.Error("Salt file was not created")
	}

	salt, err := os.ReadFile(saltPath)
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}
	if len(salt) != SaltSize {
		t.Errorf("Salt size = %d, want %d", len(salt), SaltSize)
	}
}

func TestKeyMaterialStore_WriteRead(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("test-password-456")

	ks, err := NewKeyMaterialStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	testData := []byte("sensitive-session-data-12345")

	if err := ks.WriteEncrypted("test.dat", testData); err != nil {
		t.Fatalf("Failed to write encrypted: %v", err)
	}

	decrypted, err := ks.ReadEncrypted("test.dat")
	if err != nil {
		t.Fatalf("Failed to read encrypted: %v", err)
	}
	if !bytes.Equal(testData, decrypted) {
		t.Errorf("Decrypted data doesn't match original\nGot:  %s\nWant: %s", decrypted, testData)
	}

	rawData, err := os.ReadFile(filepath.Join(tempDir, "test.dat"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(rawData, testData) {
		t.Error("Data appears to be stored in plaintext")
	}
}

func TestKeyMaterialStore_WrongPassword(t *testing.T) {
	tempDir := t.TempDir()
	password1 := []byte("correct-password")
	password2 := []byte("wrong-password")

	ks1, err := NewKeyMaterialStore(tempDir, password1)
	if err != nil {
		t.Fatal(err)
	}

	testData := []byte("secret-data")
	if err := ks1.WriteEncrypted("test.dat", testData); err != nil {
		t.Fatal(err)
	}
	ks1.Close()

	ks2, err := NewKeyMaterialStore(tempDir, password2)
	if err != nil {
		t.Fatal(err)
	}
	defer ks2.Close()

	if _, err := ks2.ReadEncrypted("test.dat"); err == nil {
		t.Error("Expected error when reading with wrong password")
	}
}

func TestKeyMaterialStore_RotateKey(t *testing.T) {
	tempDir := t.TempDir()
	oldPassword := []byte("old-password")
	newPassword := []byte("new-password")

	ks, err := NewKeyMaterialStore(tempDir, append([]byte(nil), oldPassword...))
	if err != nil {
		t.Fatal(err)
	}

	testData := []byte("important-data")
	if err := ks.WriteEncrypted("test.dat", testData); err != nil {
		t.Fatal(err)
	}

	if err := ks.RotateKey(append([]byte(nil), newPassword...)); err != nil {
		t.Fatalf("Failed to rotate key: %v", err)
	}

	decrypted, err := ks.ReadEncrypted("test.dat")
	if err != nil {
		t.Fatalf("Failed to read after rotation: %v", err)
	}
	if !bytes.Equal(testData, decrypted) {
		t.Error("Data mismatch after key rotation")
	}
	ks.Close()

	ksOld, err := NewKeyMaterialStore(tempDir, append([]byte(nil), oldPassword...))
	if err != nil {
		t.Fatal(err)
	}
	defer ksOld.Close()
	if _, err := ksOld.ReadEncrypted("test.dat"); err == nil {
		t.Error("Old password should not work after rotation")
	}
}

func TestKeyMaterialStore_DeleteEncrypted(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("test-password")

	ks, err := NewKeyMaterialStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	testData := []byte("test-data")
	if err := ks.WriteEncrypted("test.dat", testData); err != nil {
		t.Fatal(err)
	}

	if err := ks.DeleteEncrypted("test.dat"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	filePath := filepath.Join(tempDir, "test.dat")
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("File should be deleted")
	}

	if err := ks.DeleteEncrypted("nonexistent.dat"); err != nil {
		t.Errorf("Deleting nonexistent file should not error: %v", err)
	}
}

func TestKeyMaterialStore_Close(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("test-password")

	ks, err := NewKeyMaterialStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}

	keyBefore := ks.encryptionKey
	hasNonZero := false
	for _, b := range keyBefore {
		if b != 0 {
			hasNonZero = true
			break
		}
	}
	if !hasNonZero {
		t.Error("Encryption key should be non-zero before close")
	}

	ks.Close()

	for i, b := range ks.encryptionKey {
		if b != 0 {
			t.Errorf("Encryption key byte %d not zeroed after close: %x", i, b)
		}
	}
}

func TestKeyMaterialStore_StoreLoadDeleteKeyMaterial(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("test-password")

	ks, err := NewKeyMaterialStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	const senderKeyID = 0x11223344
	km := &KeyMaterial{
		TransformationKind:    1,
		SenderKeyID:           senderKeyID,
		HasReceiverSpecific:   true,
		ReceiverSpecificKeyID: 0x99,
	}
	for i := range km.MasterSenderKey {
		km.MasterSenderKey[i] = byte(i)
	}
	for i := range km.MasterSalt {
		km.MasterSalt[i] = byte(255 - i)
	}
	for i := range km.MasterReceiverSpecificKey {
		km.MasterReceiverSpecificKey[i] = byte(i * 2)
	}

	if err := ks.StoreKeyMaterial(senderKeyID, km); err != nil {
		t.Fatalf("StoreKeyMaterial failed: %v", err)
	}

	loaded, err := ks.LoadKeyMaterial(senderKeyID)
	if err != nil {
		t.Fatalf("LoadKeyMaterial failed: %v", err)
	}
	if *loaded != *km {
		t.Errorf("loaded KeyMaterial does not match stored value:\ngot:  %+v\nwant: %+v", loaded, km)
	}

	if err := ks.DeleteKeyMaterial(senderKeyID); err != nil {
		t.Fatalf("DeleteKeyMaterial failed: %v", err)
	}
	if _, err := ks.LoadKeyMaterial(senderKeyID); err == nil {
		t.Error("expected error loading deleted key material")
	}
}
