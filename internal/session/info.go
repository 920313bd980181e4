package session

import (
	"context"
	"slices"
	"time"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/bollu/elide-sub000/internal/lean"
)

type infoKind int

const (
	kindGoal infoKind = iota
	kindTermGoal
	kindHover
	kindDefinition
	kindTypeDefinition
	kindCompletion
)

var infoMethods = [...]string{
	kindGoal:           lean.MethodPlainGoal,
	kindTermGoal:       lean.MethodPlainTermGoal,
	kindHover:          lean.MethodHover,
	kindDefinition:     lean.MethodDefinition,
	kindTypeDefinition: lean.MethodTypeDefinition,
	kindCompletion:     lean.MethodCompletion,
}

// infoState tracks info-view requests in flight. Only the reply to the
// newest request of each kind is shown; older replies are read and dropped.
type infoState struct {
	pending map[lean.RequestID]infoKind
	latest  map[infoKind]lean.RequestID

	goal            *lean.PlainGoal
	termGoal        *lean.TermGoal
	hover           *protocol.Hover
	definitions     []protocol.Location
	typeDefinitions []protocol.Location
	completion      *protocol.CompletionList
}

func newInfoState() infoState {
	return infoState{
		pending: make(map[lean.RequestID]infoKind),
		latest:  make(map[infoKind]lean.RequestID),
	}
}

func (s *Session) request(kind infoKind) (lean.RequestID, error) {
	if _, err := s.SyncProtocolIfDirty(); err != nil {
		return 0, err
	}
	line, char := s.toProtocol(s.cursor)
	id, err := s.engine.WriteRequest(infoMethods[kind], lean.PositionParams(s.uri, line, char))
	if err != nil {
		return 0, err
	}
	s.info.pending[id] = kind
	s.info.latest[kind] = id
	return id, nil
}

// RequestGoal asks for the tactic goal at the cursor.
func (s *Session) RequestGoal() (lean.RequestID, error) { return s.request(kindGoal) }

// RequestTermGoal asks for the expected type at the cursor.
func (s *Session) RequestTermGoal() (lean.RequestID, error) { return s.request(kindTermGoal) }

func (s *Session) RequestHover() (lean.RequestID, error) { return s.request(kindHover) }

func (s *Session) RequestDefinition() (lean.RequestID, error) { return s.request(kindDefinition) }

func (s *Session) RequestTypeDefinition() (lean.RequestID, error) {
	return s.request(kindTypeDefinition)
}

func (s *Session) RequestCompletion() (lean.RequestID, error) { return s.request(kindCompletion) }

// RequestInfoView issues the goal, term goal and hover requests the info
// view shows for the cursor.
func (s *Session) RequestInfoView() ([]lean.RequestID, error) {
	var ids []lean.RequestID
	for _, k := range []infoKind{kindGoal, kindTermGoal, kindHover} {
		id, err := s.request(k)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Pending reports whether the reply to id has not been read yet.
func (s *Session) Pending(id lean.RequestID) bool {
	_, ok := s.info.pending[id]
	return ok
}

func (s *Session) Goal() *lean.PlainGoal { return s.info.goal }

func (s *Session) TermGoal() *lean.TermGoal { return s.info.termGoal }

func (s *Session) Hover() *protocol.Hover { return s.info.hover }

func (s *Session) Definitions() []protocol.Location { return s.info.definitions }

func (s *Session) TypeDefinitions() []protocol.Location { return s.info.typeDefinitions }

func (s *Session) Completion() *protocol.CompletionList { return s.info.completion }

func (s *Session) pollInfo() error {
	ids := make([]lean.RequestID, 0, len(s.info.pending))
	for id := range s.info.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		r, ok, err := s.engine.PollResponse(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		kind := s.info.pending[id]
		delete(s.info.pending, id)
		if s.info.latest[kind] != id {
			continue
		}
		if err := s.apply(kind, r); err != nil {
			s.log.Warn("info request failed",
				zap.String("method", infoMethods[kind]), zap.Int64("id", int64(id)), zap.Error(err))
		}
	}
	return nil
}

func (s *Session) apply(kind infoKind, r *lean.Response) error {
	var err error
	switch kind {
	case kindGoal:
		s.info.goal, err = lean.DecodePlainGoal(r)
	case kindTermGoal:
		s.info.termGoal, err = lean.DecodeTermGoal(r)
	case kindHover:
		s.info.hover, err = lean.DecodeHover(r)
	case kindDefinition:
		s.info.definitions, err = lean.DecodeLocations(r)
	case kindTypeDefinition:
		s.info.typeDefinitions, err = lean.DecodeLocations(r)
	case kindCompletion:
		s.info.completion, err = lean.DecodeCompletion(r)
	}
	return err
}

// Await ticks s every interval until ready reports a value, ctx is done,
// or a tick fails.
func Await[T any](ctx context.Context, s *Session, interval time.Duration, ready func() (T, bool)) (T, error) {
	if v, ok := ready(); ok {
		return v, nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.Tick(); err != nil {
			var zero T
			return zero, err
		}
		if v, ok := ready(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AwaitReplies ticks until none of ids is pending.
func (s *Session) AwaitReplies(ctx context.Context, interval time.Duration, ids ...lean.RequestID) error {
	_, err := Await(ctx, s, interval, func() (struct{}, bool) {
		for _, id := range ids {
			if s.Pending(id) {
				return struct{}{}, false
			}
		}
		return struct{}{}, true
	})
	return err
}
