package analyzer

import (
	"fmt"
	"os"
)

// AppendRecord appends one record line to the shared record file at path.
// The write happens under an exclusive advisory lock held only for that one
// write, so concurrent workers (goroutines or processes) never interleave.
func AppendRecord(path string, rec MailRecord) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening record file '%s': %w", ErrSharedFile, path, err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return err
	}
	_, writeErr := f.WriteString(rec.String() + "\n")
	unlockErr := unlock(f)
	if writeErr != nil {
		return fmt.Errorf("%w: appending to '%s': %w", ErrWriteFailed, path, writeErr)
	}
	return unlockErr
}
