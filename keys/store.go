package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned by KeyStore.Load for an unknown name.
var ErrNotFound = errors.New("keys: key not found")

// KeyStore keeps named credentials as hex files under Directory.
//
// Layout: <Directory>/<name>.key, mode 0600, one line of lowercase hex.
type KeyStore struct {
	Directory string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".pwapub", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

func (ks *KeyStore) pathFor(name string) string {
	return filepath.Join(ks.Directory, name+".key")
}

// Save writes c under name. Without overwrite an existing key is left intact
// and an error is returned.
func (ks *KeyStore) Save(name string, c Credential, overwrite bool) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	if c.IsZero() {
		return "", errors.New("refusing to store an empty credential")
	}
	path := ks.pathFor(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.WriteString(c.Hex() + "\n"); err != nil {
		return "", err
	}
	return path, file.Close()
}

// Load reads the credential stored under name.
func (ks *KeyStore) Load(name string) (Credential, error) {
	if err := CheckKeyName(name); err != nil {
		return Credential{}, err
	}
	data, err := os.ReadFile(ks.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Credential{}, err
	}
	c, ok := Normalize(string(data))
	if !ok {
		return Credential{}, fmt.Errorf("keys: %s does not hold a valid key", ks.pathFor(name))
	}
	return c, nil
}

// List returns the stored key names in sorted order.
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".key") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".key"))
	}
	sort.Strings(names)
	return names, nil
}
