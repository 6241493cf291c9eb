// Package capability resolves the archive-side configuration of the
// application entities a request may address.
package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// Query information models an Entry can serve
const (
	ModelPatientRoot = "PATIENT_ROOT"
	ModelStudyRoot   = "STUDY_ROOT"
)

var modelSOPClasses = map[string]string{
	ModelPatientRoot: types.PatientRootQueryRetrieveInformationModelFind,
	ModelStudyRoot:   types.StudyRootQueryRetrieveInformationModelFind,
}

// Entry is the stored form of an AE configuration, read from the
// configuration file or from Redis.
type Entry struct {
	AETitle   string `yaml:"ae_title" json:"ae_title" validate:"required,max=16"`
	Installed bool   `yaml:"installed" json:"installed"`
	// QueryModels lists the information models served in the query SCP
	// role; empty serves both.
	QueryModels      []string `yaml:"query_models" json:"query_models,omitempty" validate:"dive,oneof=PATIENT_ROOT STUDY_ROOT"`
	QueryOptions     []string `yaml:"query_options" json:"query_options,omitempty"`
	MaxResults       int      `yaml:"max_results" json:"max_results,omitempty" validate:"gte=0"`
	DefaultIssuer    string   `yaml:"default_issuer" json:"default_issuer,omitempty"`
	RetrieveAETitles []string `yaml:"retrieve_ae_titles" json:"retrieve_ae_titles,omitempty"`
	Timezone         string   `yaml:"timezone" json:"timezone,omitempty" validate:"omitempty,len=5,startswith=+|startswith=-"`
}

// AEConfig converts the entry to the configuration the query service uses.
func (e *Entry) AEConfig() (*types.AEConfig, error) {
	opts, err := types.ParseQueryOptions(e.QueryOptions)
	if err != nil {
		return nil, fmt.Errorf("AE %s: %w", e.AETitle, err)
	}
	models := e.QueryModels
	if len(models) == 0 {
		models = []string{ModelPatientRoot, ModelStudyRoot}
	}
	ae := &types.AEConfig{
		AETitle:                  e.AETitle,
		Installed:                e.Installed,
		MaxResults:               e.MaxResults,
		DefaultIssuerOfPatientID: e.DefaultIssuer,
		RetrieveAETitles:         e.RetrieveAETitles,
		TimezoneOffset:           e.Timezone,
	}
	for _, m := range models {
		uid, ok := modelSOPClasses[strings.ToUpper(m)]
		if !ok {
			return nil, fmt.Errorf("AE %s: unknown query model %q", e.AETitle, m)
		}
		ae.TransferCapabilities = append(ae.TransferCapabilities, types.TransferCapability{
			SOPClassUID:  uid,
			Role:         types.RoleSCP,
			QueryOptions: opts,
		})
	}
	return ae, nil
}

// Static serves AE configurations held in memory
type Static struct {
	mu  sync.RWMutex
	aes map[string]*types.AEConfig
}

// NewStatic builds a lookup over entries.
func NewStatic(entries ...Entry) (*Static, error) {
	s := &Static{aes: make(map[string]*types.AEConfig, len(entries))}
	for i := range entries {
		if err := s.Add(&entries[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add installs or replaces the configuration of one AE.
func (s *Static) Add(e *Entry) error {
	ae, err := e.AEConfig()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aes[ae.AETitle] = ae
	return nil
}

// Lookup returns the configuration of aeTitle.
func (s *Static) Lookup(_ context.Context, aeTitle string) (*types.AEConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ae, ok := s.aes[aeTitle]
	if !ok {
		return nil, errors.NewCapabilityError(aeTitle, "unknown application entity")
	}
	return ae, nil
}
