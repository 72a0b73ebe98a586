package service

import (
	"context"
	"fmt"
	"slices"

	"canlog/internal/domain"
	"canlog/internal/export"
	"canlog/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Target Service — export destinations and their credentials
// ─────────────────────────────────────────────────────────────

// TargetInput is the service-layer DTO for creating/updating export targets.
type TargetInput struct {
	Name      string `json:"name"`
	Driver    string `json:"driver"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SSLMode   string `json:"sslMode"`
	ExtraJSON string `json:"extraJson"`
}

// TargetService manages export targets. Passwords live in the secret
// store under "export:<id>", never in the catalog.
type TargetService struct {
	store   domain.ExportTargetStore
	secrets secret.SecretStore
}

// NewTargetService creates a TargetService.
func NewTargetService(store domain.ExportTargetStore, secrets secret.SecretStore) *TargetService {
	return &TargetService{store: store, secrets: secrets}
}

func secretKey(id string) string { return "export:" + id }

func (in TargetInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("target name is required")
	}
	if !slices.Contains(export.Drivers(), domain.ExportDriver(in.Driver)) {
		return fmt.Errorf("unsupported export driver: %q", in.Driver)
	}
	return nil
}

func (s *TargetService) CreateTarget(input TargetInput) (*domain.ExportTarget, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	t := &domain.ExportTarget{
		Name:      input.Name,
		Driver:    domain.ExportDriver(input.Driver),
		Host:      input.Host,
		Port:      input.Port,
		Database:  input.Database,
		Username:  input.Username,
		SSLMode:   input.SSLMode,
		ExtraJSON: input.ExtraJSON,
	}
	if err := s.store.CreateTarget(t); err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(t.ID), []byte(input.Password)); err != nil {
			return nil, fmt.Errorf("store password: %w", err)
		}
	}
	return t, nil
}

func (s *TargetService) GetTarget(id string) (*domain.ExportTarget, error) {
	return s.store.GetTarget(id)
}

func (s *TargetService) ListTargets() ([]domain.ExportTarget, error) {
	return s.store.ListTargets()
}

func (s *TargetService) UpdateTarget(id string, input TargetInput) error {
	if err := input.validate(); err != nil {
		return err
	}
	t, err := s.store.GetTarget(id)
	if err != nil {
		return err
	}
	t.Name = input.Name
	t.Driver = domain.ExportDriver(input.Driver)
	t.Host = input.Host
	t.Port = input.Port
	t.Database = input.Database
	t.Username = input.Username
	t.SSLMode = input.SSLMode
	if input.ExtraJSON != "" {
		t.ExtraJSON = input.ExtraJSON
	}
	if err := s.store.UpdateTarget(t); err != nil {
		return err
	}
	if input.Password != "" && s.secrets != nil {
		return s.secrets.Set(secretKey(id), []byte(input.Password))
	}
	return nil
}

func (s *TargetService) DeleteTarget(id string) error {
	if s.secrets != nil {
		_ = s.secrets.Delete(secretKey(id))
	}
	return s.store.DeleteTarget(id)
}

// Open returns a live Destination for a target. The caller closes it.
func (s *TargetService) Open(id string) (export.Destination, *domain.ExportTarget, error) {
	t, err := s.store.GetTarget(id)
	if err != nil {
		return nil, nil, err
	}
	var password string
	if s.secrets != nil {
		pw, err := s.secrets.Get(secretKey(id))
		if err != nil {
			return nil, nil, fmt.Errorf("read password: %w", err)
		}
		password = string(pw)
	}
	dest, err := export.NewDestination(t, password)
	if err != nil {
		return nil, nil, err
	}
	return dest, t, nil
}

// TestTarget opens a target and checks that it is reachable.
func (s *TargetService) TestTarget(ctx context.Context, id string) error {
	dest, _, err := s.Open(id)
	if err != nil {
		return err
	}
	defer dest.Close()
	return dest.TestConnection(ctx)
}
