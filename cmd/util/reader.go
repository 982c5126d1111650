package util

import (
	"errors"
	"io"
	"os"
)

// ReadInput returns the contents of the file at path, or of stdin when
// path is "-". A terminal on stdin is refused instead of blocking on it.
func ReadInput(path string, stdin io.Reader) ([]byte, error) {
	if path != "-" {
		return os.ReadFile(path)
	}
	if f, ok := stdin.(*os.File); ok {
		stat, err := f.Stat()
		if err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return nil, errors.New("no input piped to stdin")
		}
	}
	return io.ReadAll(stdin)
}
