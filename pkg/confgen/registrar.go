package confgen

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/lager"
)

// FileRegistrar records service registrations as JSON documents in a
// directory watched by the service supervisor.
type FileRegistrar struct {
	dir string
}

func NewFileRegistrar(dir string) *FileRegistrar {
	return &FileRegistrar{
		dir: dir,
	}
}

type serviceRecord struct {
	NodeID       string    `json:"node_id"`
	ConfigPath   string    `json:"config_path"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (r *FileRegistrar) RegisterService(
	ctx context.Context,
	logger lager.Logger,
	nodeID, configPath string,
) error {
	record := serviceRecord{
		NodeID:       nodeID,
		ConfigPath:   configPath,
		RegisteredAt: time.Now().UTC(),
	}

	contents, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(r.dir, nodeID+".service.json"), contents, 0o644)
}
