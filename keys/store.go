package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"xdao.co/facetrouter/model"
)

const (
	rootKeyFile = "root.key"
	rolesDir    = "roles"
	keySuffix   = ".key"
)

// ErrNoSigner is returned by LoadSeed when no seed source is given.
var ErrNoSigner = errors.New("no signer provided")

// KeyStore keeps Ed25519 seeds on the local filesystem.
//
// Layout: <Directory>/<name>/root.key holds the root seed and
// <Directory>/<name>/roles/<role>.key holds seeds derived with DeriveRoleSeed.
// Seeds are hex, one per file, mode 0600.
type KeyStore struct {
	Directory string
}

// KeyEntry lists one key name and the role keys derived from it.
type KeyEntry struct {
	Identifier string
	Roles      []string
}

// Account describes the public side of a stored key.
type Account struct {
	Address   model.Address
	PublicKey string
}

// AccountFromSeed returns the Ed25519 account for seed.
func AccountFromSeed(seed []byte) (Account, error) {
	signer, err := NewEd25519Signer(seed)
	if err != nil {
		return Account{}, err
	}
	pub := signer.PublicKey()
	return Account{Address: AddressFromPublicKey(pub), PublicKey: PublicKeyString(AlgEd25519, pub)}, nil
}

// CreateKeyStore opens a key store rooted at directory, or at
// ~/.xdao/router-keys when directory is empty. Nothing is created until a key
// is written.
func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory != "" {
		return &KeyStore{Directory: directory}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("key store directory: %w", err)
	}
	return &KeyStore{Directory: filepath.Join(home, ".xdao", "router-keys")}, nil
}

// CheckKeyName validates a key name: ASCII letters, digits, '-' and '_'.
func CheckKeyName(name string) error { return checkSegment("key name", name) }

// CheckRole validates a role key name with the same alphabet as CheckKeyName.
func CheckRole(role string) error { return checkSegment("role", role) }

func checkSegment(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return fmt.Errorf("invalid character %q in %s", c, what)
		}
	}
	return nil
}

// ParseSeedHex decodes a 32-byte seed, with or without a 0x prefix.
func ParseSeedHex(s string) ([]byte, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

// LoadSeedFile reads a hex seed file as written by the key store.
func LoadSeedFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(b))
}

// seedPath returns the file of name's root key (role == "") or role key.
func (ks *KeyStore) seedPath(name, role string) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	if role == "" {
		return filepath.Join(ks.Directory, name, rootKeyFile), nil
	}
	if err := CheckRole(role); err != nil {
		return "", err
	}
	return filepath.Join(ks.Directory, name, rolesDir, role+keySuffix), nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, mode, 0o600)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, hex.EncodeToString(seed)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// store writes seed for name/role and returns its account and file.
func (ks *KeyStore) store(name, role string, seed []byte, overwrite bool) (Account, string, error) {
	path, err := ks.seedPath(name, role)
	if err != nil {
		return Account{}, "", err
	}
	acct, err := AccountFromSeed(seed)
	if err != nil {
		return Account{}, "", err
	}
	if err := writeSeed(path, seed, overwrite); err != nil {
		return Account{}, "", err
	}
	return acct, path, nil
}

func (ks *KeyStore) load(name, role string) ([]byte, error) {
	path, err := ks.seedPath(name, role)
	if err != nil {
		return nil, err
	}
	return LoadSeedFile(path)
}

// InitializeRootKey stores seed as the root key of identifier.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (Account, string, error) {
	return ks.store(identifier, "", seed, overwrite)
}

// DeriveKeyFromRole derives and stores the role key of from.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (Account, string, error) {
	if err := CheckRole(role); err != nil {
		return Account{}, "", err
	}
	root, err := ks.load(from, "")
	if err != nil {
		return Account{}, "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return Account{}, "", err
	}
	return ks.store(from, role, seed, overwrite)
}

// ExportKey returns the account of a stored root (role == "") or role key.
func (ks *KeyStore) ExportKey(identifier string, role string) (Account, error) {
	seed, err := ks.load(identifier, role)
	if err != nil {
		return Account{}, err
	}
	return AccountFromSeed(seed)
}

// LoadSeed resolves a seed from, in order: hex, a key file, or a stored name/role.
func (ks *KeyStore) LoadSeed(seedHex, signerName, signerRole, keyFile string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return LoadSeedFile(keyFile)
	case signerName != "":
		return ks.load(signerName, signerRole)
	}
	return nil, ErrNoSigner
}

// ListKeys returns every stored key name with its role keys, sorted. A missing
// directory is an empty store.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	dirs, err := os.ReadDir(ks.Directory)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := lo.FilterMap(dirs, func(d os.DirEntry, _ int) (KeyEntry, bool) {
		if !d.IsDir() {
			return KeyEntry{}, false
		}
		return KeyEntry{Identifier: d.Name(), Roles: ks.roleNames(d.Name())}, true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// roleNames lists the role keys of name; unreadable role directories list as none.
func (ks *KeyStore) roleNames(name string) []string {
	files, err := os.ReadDir(filepath.Join(ks.Directory, name, rolesDir))
	if err != nil {
		return nil
	}
	roles := lo.FilterMap(files, func(f os.DirEntry, _ int) (string, bool) {
		return strings.TrimSuffix(f.Name(), keySuffix), !f.IsDir() && strings.HasSuffix(f.Name(), keySuffix)
	})
	if len(roles) == 0 {
		return nil
	}
	sort.Strings(roles)
	return roles
}
