package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
)

type storeFile struct {
	Devices []entity.DeviceConfig `yaml:"devices"`
}

// Store persists config entries to a YAML file. An empty path disables persistence.
type Store struct {
	path string
	lock sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() ([]entity.DeviceConfig, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	file, err := s.read()
	if err != nil {
		return nil, err
	}
	return file.Devices, nil
}

// Upsert adds entry or replaces the entry with the same device id.
func (s *Store) Upsert(entry entity.DeviceConfig) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	file, err := s.read()
	if err != nil {
		return err
	}
	for i := range file.Devices {
		if file.Devices[i].DeviceID == entry.DeviceID {
			file.Devices[i] = entry
			return s.write(file)
		}
	}
	file.Devices = append(file.Devices, entry)
	return s.write(file)
}

func (s *Store) Delete(deviceID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	file, err := s.read()
	if err != nil {
		return err
	}
	devices := file.Devices[:0]
	for _, device := range file.Devices {
		if device.DeviceID != deviceID {
			devices = append(devices, device)
		}
	}
	file.Devices = devices
	return s.write(file)
}

func (s *Store) read() (*storeFile, error) {
	var file storeFile
	if s.path == "" {
		return &file, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &file, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Store: read %v failed, %w", s.path, err)
	}
	if err = yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("Store: unmarshal %v failed, %w", s.path, err)
	}
	return &file, nil
}

// write replaces the file atomically through a temporary sibling.
func (s *Store) write(file *storeFile) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("Store: marshal failed, %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("Store: create directory failed, %w", err)
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("Store: write %v failed, %w", tmp, err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("Store: rename %v failed, %w", tmp, err)
	}
	return nil
}
