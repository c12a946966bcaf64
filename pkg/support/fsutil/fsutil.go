// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities to read and write files given by the user (e.g. in flags).
package fsutil

import (
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ExpandPath replaces a leading "~" or "~user" by the user's home directory. Other paths are returned as is.
//
// It returns an error if the user is unknown (e.g: "~unknown/...").
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	userName, rest, _ := strings.Cut(path[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", path)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// Create expands path (see ExpandPath) and creates the file for writing, along with its missing parent
// directories. The path "-" is the standard output, and closing it is a no-op.
func Create(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %q", path)
	}
	return f, nil
}

// Open expands path (see ExpandPath) and opens the file for reading. The path "-" is the standard input.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
