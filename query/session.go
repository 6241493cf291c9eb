package query

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// SessionState is the lifecycle state of a Session
type SessionState int

const (
	StateEmpty SessionState = iota
	StateBuilt
	StateExecuted
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateBuilt:
		return "BUILT"
	case StateExecuted:
		return "EXECUTED"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session runs one query against a backend. It owns the storage connection
// and cursor it acquires and must be closed on every path.
//
// A Session is not safe for concurrent use.
type Session struct {
	backend Backend
	logger  *slog.Logger
	state   SessionState
	plan    *Plan

	conn    Conn
	cursor  Cursor
	count   int64
	counted bool

	// look-ahead of one match
	next    *dicom.Dataset
	nextErr error
}

// NewSession creates an empty session. No resource is acquired until the
// session first counts or executes.
func NewSession(backend Backend, opts ...SessionOption) *Session {
	s := &Session{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

var stateErrors = map[SessionState]error{
	StateEmpty:    errors.ErrQueryNotBuilt,
	StateBuilt:    errors.ErrQueryNotExecuted,
	StateExecuted: errors.ErrQueryExecuted,
	StateClosed:   errors.ErrSessionClosed,
}

func (s *Session) stateError(op string) error {
	return errors.NewStateError(op, s.state.String(), stateErrors[s.state])
}

// checkNoQuery fails unless no query has been built on the session.
func (s *Session) checkNoQuery(op string) error {
	switch s.state {
	case StateEmpty:
		return nil
	case StateClosed:
		return s.stateError(op)
	}
	return errors.NewStateError(op, s.state.String(), errors.ErrQueryAlreadyBuilt)
}

// Build compiles the query. It may be called once per session.
func (s *Session) Build(level types.QueryLevel, pids []types.IDWithIssuer, keys *dicom.Dataset, param *QueryParam) error {
	if err := s.checkNoQuery("build"); err != nil {
		return err
	}
	plan, err := Build(level, pids, keys, param)
	if err != nil {
		return err
	}
	s.plan = plan
	s.state = StateBuilt
	if plan.OptionalKeyNotSupported() {
		s.logger.Debug("Query carries keys the archive cannot match", "level", level)
	}
	return nil
}

// Plan returns the built plan, or nil before Build.
func (s *Session) Plan() *Plan {
	return s.plan
}

// OptionalKeyNotSupported reports whether the built query ignored keys it
// could not match.
func (s *Session) OptionalKeyNotSupported() bool {
	return s.plan != nil && s.plan.OptionalKeyNotSupported()
}

// Limit bounds the number of matches; 0 means unbounded.
func (s *Session) Limit(n int) error {
	if s.state != StateBuilt {
		return s.stateError("limit")
	}
	s.plan.Limit = n
	return nil
}

// Offset skips the first n matches.
func (s *Session) Offset(n int) error {
	if s.state != StateBuilt {
		return s.stateError("offset")
	}
	s.plan.Offset = n
	return nil
}

// OrderBy sets the sort keys, replacing any set before.
func (s *Session) OrderBy(orders ...Order) error {
	if s.state != StateBuilt {
		return s.stateError("orderBy")
	}
	s.plan.OrderBy = append([]Order(nil), orders...)
	return nil
}

func (s *Session) acquire(ctx context.Context) (Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.backend.Acquire(ctx)
	if err != nil {
		return nil, errors.NewStorageError("acquire connection", err)
	}
	s.conn = conn
	return conn, nil
}

// Count returns the number of matches ignoring offset and limit. The count is
// computed once per session.
func (s *Session) Count(ctx context.Context) (int64, error) {
	if s.state != StateBuilt && s.state != StateExecuted {
		return 0, s.stateError("count")
	}
	if s.counted {
		return s.count, nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Count(ctx, s.plan)
	if err != nil {
		return 0, errors.NewStorageError("count", err)
	}
	s.count, s.counted = n, true
	return n, nil
}

// Execute opens the cursor and reads ahead one match.
func (s *Session) Execute(ctx context.Context) error {
	if s.state != StateBuilt {
		return s.stateError("execute")
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	cursor, err := conn.Query(ctx, s.plan)
	if err != nil {
		return errors.NewStorageError("query", err)
	}
	s.cursor = cursor
	s.state = StateExecuted
	s.logger.DebugContext(ctx, "Executed query",
		"level", s.plan.Level,
		"offset", s.plan.Offset,
		"limit", s.plan.Limit)
	s.advance(ctx)
	return s.nextErr
}

func (s *Session) advance(ctx context.Context) {
	s.next = nil
	if s.cursor.Next(ctx) {
		s.next = s.cursor.Record()
		return
	}
	if err := s.cursor.Err(); err != nil {
		s.nextErr = errors.NewStorageError("fetch", err)
	}
}

// HasMoreMatches reports whether NextMatch has a match to return.
func (s *Session) HasMoreMatches() bool {
	return s.state == StateExecuted && s.next != nil
}

// NextMatch returns the current match and reads ahead the following one.
func (s *Session) NextMatch(ctx context.Context) (*dicom.Dataset, error) {
	if s.state != StateExecuted {
		return nil, s.stateError("nextMatch")
	}
	if s.next == nil {
		if s.nextErr != nil {
			return nil, s.nextErr
		}
		return nil, errors.NewStateError("nextMatch", s.state.String(), errors.ErrNoMoreMatches)
	}
	match := s.next
	s.advance(ctx)
	return match, nil
}

// Matches returns the remaining matches as a single pass sequence. Iteration
// stops at the first error, which is yielded with a nil match.
func (s *Session) Matches(ctx context.Context) iter.Seq2[*dicom.Dataset, error] {
	return func(yield func(*dicom.Dataset, error) bool) {
		for s.HasMoreMatches() {
			match, err := s.NextMatch(ctx)
			if !yield(match, err) || err != nil {
				return
			}
		}
		if s.state == StateExecuted && s.nextErr != nil {
			yield(nil, s.nextErr)
		}
	}
}

// Close releases the cursor and connection. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	s.next = nil
	var firstErr error
	if s.cursor != nil {
		if err := s.cursor.Close(); err != nil {
			firstErr = err
		}
		s.cursor = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.conn = nil
	}
	if firstErr != nil {
		return errors.NewStorageError("close query session", firstErr)
	}
	return nil
}
