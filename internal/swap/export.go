package swap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/embarcadero/pkg/helpers"
)

// DefaultExportPrefix is the file name prefix of exported transactions.
const DefaultExportPrefix = "embc_txn"

// exportIDLength is how many characters of the swap ID go into the file
// name.
const exportIDLength = 6

// ExportFile is a transaction serialized for the counterparty.
type ExportFile struct {
	Name string
	Data []byte
}

// ExportName returns the file name of an exported transaction.
func ExportName(prefix, id string) string {
	if prefix == "" {
		prefix = DefaultExportPrefix
	}
	return fmt.Sprintf("%s_%s.json", prefix, helpers.ShortID(id, exportIDLength))
}

// Export serializes the current transaction. It returns nil, nil when no
// swap is loaded.
func (s *Session) Export() (*ExportFile, error) {
	s.mu.Lock()
	id, txn := s.swapID, s.txn
	s.mu.Unlock()

	if id == "" || txn == nil {
		return nil, nil
	}

	data, err := json.MarshalIndent(txn, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	data = append(data, '\n')

	return &ExportFile{
		Name: ExportName(s.exportPrefix, id),
		Data: data,
	}, nil
}

// WriteTo writes the file into dir and returns its path.
func (f *ExportFile) WriteTo(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, f.Name)
	if err := os.WriteFile(path, f.Data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
