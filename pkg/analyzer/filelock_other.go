//go:build !unix

package analyzer

import (
	"os"
	"sync"
)

// Without flock only in-process workers are serialized.
var appendMu sync.Mutex

func lockExclusive(*os.File) error {
	appendMu.Lock()
	return nil
}

func unlock(*os.File) error {
	appendMu.Unlock()
	return nil
}
