package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultVersion    = 2
	vaultSaltLen    = 32
	vaultKeyLen     = 32
	vaultIterations = 100000
	passphraseEnv   = "FANSYNC_PASSPHRASE"
	passphraseFile  = ".passphrase"
)

// EncryptedFileStore keeps every session in one AES-GCM sealed file. The key
// is derived with PBKDF2 from FANSYNC_PASSPHRASE, or from a passphrase
// generated on first use and kept next to the vault.
type EncryptedFileStore struct {
	path       string
	passphrase []byte
	mu         sync.RWMutex
}

// vaultFile is the on-disk envelope. Data is nonce||ciphertext.
type vaultFile struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Data     []byte    `json:"data"`
	Modified time.Time `json:"modified"`
}

func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create vault directory")
	}
	pass, err := vaultPassphrase(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

func (e *EncryptedFileStore) Store(session *Session) error {
	if session == nil || session.Name == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, err := e.open()
	if err != nil {
		return err
	}
	sessions[session.Name] = *session
	return e.seal(sessions)
}

func (e *EncryptedFileStore) Retrieve(name string) (*Session, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, err := e.open()
	if err != nil {
		return nil, err
	}
	s, ok := sessions[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &s, nil
}

func (e *EncryptedFileStore) List() ([]*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, err := e.open()
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, &s)
	}
	return out, nil
}

// Delete removes a session. The vault file goes away with the last one.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, err := e.open()
	if err != nil {
		return err
	}
	if _, ok := sessions[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(sessions, name)
	if len(sessions) == 0 {
		return os.Remove(e.path)
	}
	return e.seal(sessions)
}

func (e *EncryptedFileStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

// open reads and decrypts the vault. A missing file is an empty vault.
func (e *EncryptedFileStore) open() (map[string]Session, error) {
	sessions := make(map[string]Session)

	raw, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return sessions, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read vault")
	}

	var vf vaultFile
	if err := json.Unmarshal(raw, &vf); err != nil {
		return nil, errors.Wrap(err, "parse vault")
	}
	aead, err := e.cipher(vf.Salt)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(vf.Data) < n {
		return nil, errors.New("vault data truncated")
	}
	plain, err := aead.Open(nil, vf.Data[:n], vf.Data[n:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt vault")
	}
	if err := json.Unmarshal(plain, &sessions); err != nil {
		return nil, errors.Wrap(err, "parse sessions")
	}
	return sessions, nil
}

// seal encrypts sessions under a fresh salt and nonce and replaces the vault
// atomically.
func (e *EncryptedFileStore) seal(sessions map[string]Session) error {
	salt := make([]byte, vaultSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "generate salt")
	}
	aead, err := e.cipher(salt)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(sessions)
	if err != nil {
		return errors.Wrap(err, "encode sessions")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "generate nonce")
	}

	out, err := json.MarshalIndent(vaultFile{
		Version:  vaultVersion,
		Salt:     salt,
		Data:     aead.Seal(nonce, nonce, plain, nil),
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode vault")
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return errors.Wrap(err, "write vault")
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) cipher(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, vaultIterations, vaultKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func vaultPassphrase(dir string) ([]byte, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return []byte(p), nil
	}

	path := filepath.Join(dir, passphraseFile)
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return b, nil
	}
	p, err := generatePassphrase()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(p), 0o600); err != nil {
		return nil, errors.Wrap(err, "save passphrase")
	}
	return []byte(p), nil
}

func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate passphrase: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
