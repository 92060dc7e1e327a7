package kfx

import (
	"io"
	"os"
	"path/filepath"
)

// Function variables for testing injection.
var (
	createTemp = os.CreateTemp
	renameFile = os.Rename
	syncFile   = func(f *os.File) error { return f.Sync() }
)

// Marshal assembles the container bytes of r. It may be called repeatedly;
// each call yields identical bytes.
func (r *Result) Marshal() ([]byte, error) {
	return assemble(r.Symbols, r.ContainerID, r.cfg, r.Fragments)
}

// Encode writes the container to w. Write failures are reported as
// *IOError, carrying the file name when w has one.
func (r *Result) Encode(w io.Writer) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		var path string
		if named, ok := w.(interface{ Name() string }); ok {
			path = named.Name()
		}
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// WriteFile writes the container to path atomically: the bytes go to a
// temporary file in the same directory which is then renamed over path.
// On failure path is left untouched.
func (r *Result) WriteFile(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Encode builds book and writes its container to w.
//
// Encode is shorthand for Build followed by Result.Encode. The container is
// assembled in memory before the first write, so a build error leaves w
// untouched.
func Encode(w io.Writer, book *Book, opts ...BuildOption) error {
	res, err := Build(book, opts...)
	if err != nil {
		return err
	}
	return res.Encode(w)
}

// WriteFile builds book and writes its container to path atomically.
func WriteFile(path string, book *Book, opts ...BuildOption) error {
	res, err := Build(book, opts...)
	if err != nil {
		return err
	}
	return res.WriteFile(path)
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := createTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		return &IOError{Op: "write", Path: path, Temp: tmp, Err: err}
	}
	if err = syncFile(f); err != nil {
		return &IOError{Op: "sync", Path: path, Temp: tmp, Err: err}
	}
	if err = f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Temp: tmp, Err: err}
	}
	if err = renameFile(tmp, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
