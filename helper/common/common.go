package common

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Substr returns up to size runes of s starting at rune offset start.
// A negative start is treated as zero.
func Substr(s string, start, size int) string {
	runes := []rune(s)

	if start < 0 {
		start = 0
	}

	if start >= len(runes) {
		return ""
	}

	end := start + size
	if end > len(runes) {
		end = len(runes)
	}

	return string(runes[start:end])
}

// GetOutboundIP returns the preferred outbound ip of this machine
func GetOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}

	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, errors.New("unexpected local address type")
	}

	return localAddr.IP, nil
}

// DirectoryExists reports whether path exists and is a directory
func DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}

// FileExists reports whether path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// CreateDirSafe creates path and its parents with the given permissions
func CreateDirSafe(path string, perms os.FileMode) error {
	if err := os.MkdirAll(path, perms); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}

	return nil
}

// SaveFileAtomic writes data to a temporary file in the target directory and
// renames it over path. Readers never observe a partial file.
func SaveFileAtomic(path string, data []byte, perms os.FileMode) error {
	dir := filepath.Dir(path)

	if err := CreateDirSafe(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perms); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
