// Package confgen materializes node configuration records for managed
// database nodes. It is plain CRUD driven by the control plane and does not
// consult the authorization core.
package confgen

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"code.cloudfoundry.org/lager"
)

const (
	messageWroteConfig       = "wrote-node-config"
	messageRegisteredService = "registered-service"

	errStaleGeneration       = "stale-generation"
	errFailedToWriteConfig   = "failed-to-write-node-config"
	errFailedToRegister      = "failed-to-register-service"
	errInvalidNodeSettings   = "invalid-node-settings"
	failedToRemoveTempConfig = "failed-to-remove-temp-config"
)

var (
	ErrStaleGeneration     = errors.New("confgen: generation must increase")
	ErrInvalidNodeSettings = errors.New("confgen: invalid node settings")
)

// NodeSettings carries everything needed to render one node's configuration.
type NodeSettings struct {
	NodeID          string   `json:"node_id"`
	ListenAddress   string   `json:"listen_address"`
	DataDirectory   string   `json:"data_directory"`
	KeeperEndpoints []string `json:"keeper_endpoints"`
}

type GenerateRequest struct {
	Generation uint64       `json:"generation"`
	Settings   NodeSettings `json:"settings"`
}

// NodeConfig is the fully materialized configuration record returned to the
// caller and persisted at ConfigPath.
type NodeConfig struct {
	Generation  uint64       `json:"generation"`
	Settings    NodeSettings `json:"settings"`
	ConfigPath  string       `json:"config_path"`
	GeneratedAt time.Time    `json:"generated_at"`
}

//go:generate counterfeiter . Registrar

// Registrar enables the managed service once its configuration is on disk.
type Registrar interface {
	RegisterService(ctx context.Context, logger lager.Logger, nodeID, configPath string) error
}

type Service struct {
	dir       string
	registrar Registrar

	mu             sync.Mutex
	lastGeneration uint64
	hasGeneration  bool
}

func NewService(dir string, registrar Registrar) *Service {
	return &Service{
		dir:       dir,
		registrar: registrar,
	}
}

// Generate validates the request, writes the configuration file, and
// registers the managed service. Generations must be strictly increasing; a
// replayed or stale generation is rejected before any file is touched.
func (s *Service) Generate(
	ctx context.Context,
	logger lager.Logger,
	req GenerateRequest,
) (NodeConfig, error) {
	logger = logger.Session("generate", lager.Data{
		"node_id":    req.Settings.NodeID,
		"generation": req.Generation,
	})

	if req.Settings.NodeID == "" || req.Settings.ListenAddress == "" || req.Settings.DataDirectory == "" {
		logger.Error(errInvalidNodeSettings, ErrInvalidNodeSettings)
		return NodeConfig{}, ErrInvalidNodeSettings
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasGeneration && req.Generation <= s.lastGeneration {
		logger.Error(errStaleGeneration, ErrStaleGeneration, lager.Data{
			"last_generation": s.lastGeneration,
		})
		return NodeConfig{}, ErrStaleGeneration
	}

	config := NodeConfig{
		Generation:  req.Generation,
		Settings:    req.Settings,
		ConfigPath:  filepath.Join(s.dir, req.Settings.NodeID+".json"),
		GeneratedAt: time.Now().UTC(),
	}

	if err := s.writeConfig(logger, config); err != nil {
		logger.Error(errFailedToWriteConfig, err)
		return NodeConfig{}, err
	}
	logger.Debug(messageWroteConfig, lager.Data{"path": config.ConfigPath})

	if err := s.registrar.RegisterService(ctx, logger, req.Settings.NodeID, config.ConfigPath); err != nil {
		logger.Error(errFailedToRegister, err)
		return NodeConfig{}, err
	}
	logger.Debug(messageRegisteredService)

	s.lastGeneration = req.Generation
	s.hasGeneration = true

	return config, nil
}

// writeConfig writes to a temp file in the target directory and renames it
// into place so readers never observe a partial config.
func (s *Service) writeConfig(logger lager.Logger, config NodeConfig) error {
	contents, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, config.Settings.NodeID+".*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		s.removeTemp(logger, tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		s.removeTemp(logger, tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), config.ConfigPath); err != nil {
		s.removeTemp(logger, tmp.Name())
		return err
	}
	return nil
}

func (s *Service) removeTemp(logger lager.Logger, path string) {
	if err := os.Remove(path); err != nil {
		logger.Error(failedToRemoveTempConfig, err, lager.Data{"path": path})
	}
}
