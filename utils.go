package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
	"syscall"
	"unicode"
)

// access(2) mode for write permission
const wOK = 0x2

// splitPath splits p like dirname and basename do: the directory has
// its trailing slashes removed unless it is the root, and is empty when
// p has no slash at all
func splitPath(p string) (dir, base string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	dir = p[:i+1]
	if trimmed := strings.TrimRight(dir, "/"); trimmed != "" {
		dir = trimmed
	}
	return dir, p[i+1:]
}

// currentUser returns a name identifying the invoking user, falling back
// to $USER and then the numeric uid
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return strconv.Itoa(os.Getuid())
}

// homeDir returns the invoking user's home directory from $HOME or,
// when that is unset, the user database
func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		return home, nil
	}
	if u, uerr := user.Current(); uerr == nil && u.HomeDir != "" {
		return u.HomeDir, nil
	}
	return "", err
}

// writable reports whether the current user may create files in dir
func writable(dir string) bool {
	return syscall.Access(dir, wOK) == nil
}

// moveFile renames src to dst, copying across filesystems when rename
// cannot
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReadFileList reads one path per line from r, trimming trailing
// whitespace and skipping blank lines
func ReadFileList(r io.Reader) ([]string, error) {
	var files []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRightFunc(scanner.Text(), unicode.IsSpace)
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files, scanner.Err()
}

// isPiped reports whether f is a pipe or file rather than a terminal
func isPiped(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}
