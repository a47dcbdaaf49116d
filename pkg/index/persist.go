package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Save writes f to path. The file is written next to path and renamed into
// place, so readers never observe a partial index.
func Save(path string, f *Flat) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	if err := Encode(w, f); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	// Atomic rename
	return os.Rename(tmp, path)
}

// Load reads an index written by Save.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return f, nil
}

// Encode writes f in msgpack form.
func Encode(w io.Writer, f *Flat) error {
	return msgpack.NewEncoder(w).Encode(&f.data)
}

// Decode reads a msgpack index and validates its shape.
func Decode(r io.Reader) (*Flat, error) {
	var d Data
	if err := msgpack.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	return fromData(d)
}
