package query

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/interfaces"
	"github.com/caio-sobreiro/dicomarc/types"
	"github.com/caio-sobreiro/dicomarc/wildcard"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger overrides the logger used by the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBaseURL sets the base location of the retrieve service used to build
// RetrieveURL values.
func WithBaseURL(baseURL string) ServiceOption {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithIdentityResolver cross-references patient identifiers before matching.
func WithIdentityResolver(r interfaces.IdentityResolver) ServiceOption {
	return func(s *Service) {
		s.identities = r
	}
}

// WithMatchUnknown also matches records where a matched attribute is empty.
func WithMatchUnknown(enabled bool) ServiceOption {
	return func(s *Service) {
		s.matchUnknown = enabled
	}
}

// WithPersonNameCaseInsensitive sets whether person names compare ignoring
// case. Enabled by default.
func WithPersonNameCaseInsensitive(enabled bool) ServiceOption {
	return func(s *Service) {
		s.pnCaseInsensitive = enabled
	}
}

// Service answers searches over the Patient/Study/Series/Instance hierarchy.
//
// A search is validated before any storage resource is acquired: the target
// AE must be installed and serve the query information model as SCP, the
// requested query options must be a subset of those the AE supports, and
// every request parameter must parse. Only then does the service open a
// Session, paginate it and hand the projected matches to the caller.
//
// Example usage:
//
//	svc := query.NewService(store, capabilities, filters, query.WithBaseURL(base))
//	err := svc.Search(ctx, req, func(res *query.Result) error {
//		for match, err := range res.Matches {
//			if err != nil {
//				return err
//			}
//			// write match
//		}
//		return nil
//	})
type Service struct {
	backend    Backend
	caps       interfaces.CapabilityLookup
	filters    interfaces.AttributeFilters
	identities interfaces.IdentityResolver

	baseURL           string
	matchUnknown      bool
	pnCaseInsensitive bool
	logger            *slog.Logger
}

// NewService creates a search service over backend.
func NewService(backend Backend, caps interfaces.CapabilityLookup, filters interfaces.AttributeFilters, opts ...ServiceOption) *Service {
	s := &Service{
		backend:           backend,
		caps:              caps,
		filters:           filters,
		pnCaseInsensitive: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Result is the outcome of a search handed to the caller of Search.
type Result struct {
	Status Status
	Level  types.QueryLevel
	// OptionalKeyNotSupported is set when keys were ignored because the
	// archive cannot match them.
	OptionalKeyNotSupported bool
	// Matches yields the projected matches one at a time. It is empty for
	// StatusEmpty and valid only until the callback returns.
	Matches iter.Seq2[*dicom.Dataset, error]
}

// Search runs req and passes the result to fn. The query session is closed
// when fn returns, whatever the outcome; an error returned by fn, for example
// a failed response write, stops iteration and is returned unchanged.
func (s *Service) Search(ctx context.Context, req *Request, fn func(*Result) error) error {
	ae, err := s.caps.Lookup(ctx, req.AETitle)
	if err != nil {
		return err
	}
	opts, err := s.checkCapability(ae, req)
	if err != nil {
		return err
	}
	keys, err := ParseKeys(req)
	if err != nil {
		return err
	}
	pids, err := s.patientIDs(ctx, ae, keys.Dataset)
	if err != nil {
		return err
	}

	param := &QueryParam{
		Options:                   opts,
		Fuzzy:                     s.filters.Fuzzy(),
		PersonNameCaseInsensitive: s.pnCaseInsensitive,
		MatchUnknown:              s.matchUnknown,
		IncludeMergedPatients:     req.IncludeMergedPatients,
		AccessControlIDs:          req.AccessControlIDs,
		ArchiveTimezoneOffset:     ae.TimezoneOffset,
	}

	logger := s.logger.With("ae_title", req.AETitle, "level", req.Level)
	session := NewSession(s.backend, WithSessionLogger(logger))
	defer func() {
		if err := session.Close(); err != nil {
			logger.WarnContext(ctx, "Failed to close query session", "error", err)
		}
	}()

	if err := session.Build(req.Level, pids, keys.Dataset, param); err != nil {
		return err
	}
	status, err := Paginate(ctx, session, Page{
		MaxResults: ae.MaxResults,
		Offset:     keys.Offset,
		Limit:      keys.Limit,
		OrderBy:    keys.OrderBy,
	})
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "Search executed",
		"status", status,
		"options", opts.String(),
		"optional_key_not_supported", session.OptionalKeyNotSupported())

	projector := &Projector{
		Level:         req.Level,
		IncludeAll:    keys.IncludeAll,
		Keys:          keys.Dataset,
		AlwaysInclude: s.filters.AlwaysInclude(req.Level),
		BaseURL:       s.baseURL,
		AETitle:       req.AETitle,
	}
	return fn(&Result{
		Status:                  status,
		Level:                   req.Level,
		OptionalKeyNotSupported: session.OptionalKeyNotSupported(),
		Matches:                 project(ctx, session, status, projector),
	})
}

func project(ctx context.Context, session *Session, status Status, p *Projector) iter.Seq2[*dicom.Dataset, error] {
	return func(yield func(*dicom.Dataset, error) bool) {
		if status == StatusEmpty {
			return
		}
		for match, err := range session.Matches(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(p.Project(match), nil) {
				return
			}
		}
	}
}

// checkCapability verifies the AE may serve the request and returns the
// effective query options.
func (s *Service) checkCapability(ae *types.AEConfig, req *Request) (types.QueryOptions, error) {
	if !ae.Installed {
		return 0, errors.NewCapabilityError(ae.AETitle, "application entity is not installed")
	}
	sopClass := types.StudyRootQueryRetrieveInformationModelFind
	if req.Level == types.QueryLevelPatient {
		sopClass = types.PatientRootQueryRetrieveInformationModelFind
	}
	tc := ae.TransferCapabilityFor(sopClass, types.RoleSCP)
	if tc == nil {
		return 0, errors.NewCapabilityError(ae.AETitle,
			fmt.Sprintf("no SCP role for %s", types.GetSOPClassInfo(sopClass).Name))
	}
	requested, err := RequestedOptions(req)
	if err != nil {
		return 0, err
	}
	if missing := requested.Missing(tc.QueryOptions); missing != 0 {
		return 0, errors.NewCapabilityError(ae.AETitle,
			fmt.Sprintf("query options %s not supported", missing))
	}
	return requested, nil
}

// patientIDs resolves a single, wildcard free PatientID key into the
// identities of that patient. The AE's default issuer applies when the key
// carries none.
func (s *Service) patientIDs(ctx context.Context, ae *types.AEConfig, keys *dicom.Dataset) ([]types.IDWithIssuer, error) {
	ids := keys.GetStrings(dicom.PatientID)
	if len(ids) != 1 || ids[0] == "" || wildcard.Has(ids[0]) {
		return nil, nil
	}
	pid := types.IDWithIssuer{ID: ids[0], Issuer: keys.GetString(dicom.IssuerOfPatientID)}
	if pid.Issuer == "" {
		pid.Issuer = ae.DefaultIssuerOfPatientID
	}
	if s.identities == nil {
		return []types.IDWithIssuer{pid}, nil
	}
	resolved, err := s.identities.Resolve(ctx, pid)
	if err != nil {
		return nil, errors.NewStorageError("resolve patient identity", err)
	}
	if len(resolved) == 0 {
		return []types.IDWithIssuer{pid}, nil
	}
	return resolved, nil
}
