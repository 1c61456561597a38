// internal/shipment/service.go
package shipment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/history"
	"shiptrack-api-server/internal/metrics"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    string
	Name  string
	Phone string
	Role  string
}

func (a Actor) staff() bool { return a.Role == models.RoleStaff || a.Role == models.RoleAdmin }

// Notifier is told about every committed change, after the write.
type Notifier interface {
	ShipmentChanged(ctx context.Context, s models.Shipment, prev models.ShipmentStatus)
}

type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type ProfileLookup interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
}

type nopNotifier struct{}

func (nopNotifier) ShipmentChanged(context.Context, models.Shipment, models.ShipmentStatus) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, realtime.Event) error { return nil }

// Service is the single authority for shipment state. Every status change
// goes through transition, which checks the precondition, writes
// conditionally, then fans out.
type Service struct {
	repo     Repository
	log      *zap.Logger
	notifier Notifier
	events   Publisher
	anchor   history.Anchor
	profiles ProfileLookup
	idem     IdempotencyStore
	proofs   ProofStore
	retry    RetryPolicy
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option             { return func(s *Service) { s.notifier = n } }
func WithPublisher(p Publisher) Option           { return func(s *Service) { s.events = p } }
func WithAnchor(a history.Anchor) Option         { return func(s *Service) { s.anchor = a } }
func WithProfiles(p ProfileLookup) Option        { return func(s *Service) { s.profiles = p } }
func WithIdempotency(st IdempotencyStore) Option { return func(s *Service) { s.idem = st } }
func WithRetryPolicy(p RetryPolicy) Option       { return func(s *Service) { s.retry = p } }
func WithClock(now func() time.Time) Option      { return func(s *Service) { s.now = now } }

func NewService(repo Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		log:      log,
		notifier: nopNotifier{},
		events:   nopPublisher{},
		anchor:   history.NopAnchor{},
		idem:     NewMemoryIdempotency(24 * time.Hour),
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Position is an agent's coordinates.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// --- Queries ---

func (s *Service) Get(ctx context.Context, actor Actor, id string) (*models.Shipment, error) {
	sh, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, *sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// List returns shipments visible to actor, newest first. Customers only see
// their own shipments and agents only those assigned to them.
func (s *Service) List(ctx context.Context, actor Actor, f Filter) ([]models.Shipment, error) {
	switch actor.Role {
	case models.RoleCustomer:
		f.CustomerID = actor.ID
	case models.RoleAgent:
		f.AgentID = actor.ID
	}
	var out []models.Shipment
	err := Retry(ctx, s.retry, "list", func(ctx context.Context, _ int) error {
		var err error
		out, err = s.repo.List(ctx, f)
		return err
	})
	return out, err
}

// AgentTasks lists the agent's shipments that still need work.
func (s *Service) AgentTasks(ctx context.Context, actor Actor) ([]models.Shipment, error) {
	if actor.Role != models.RoleAgent {
		return nil, apperrors.Forbidden("only agents have a task list")
	}
	return s.List(ctx, actor, Filter{ActiveOnly: true})
}

func (s *Service) History(ctx context.Context, actor Actor, id string) ([]models.ShipmentHistory, error) {
	sh, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return sh.History, nil
}

func (s *Service) Stats(ctx context.Context, actor Actor) (models.ShipmentStats, error) {
	list, err := s.List(ctx, actor, Filter{})
	if err != nil {
		return models.ShipmentStats{}, err
	}
	st := models.ShipmentStats{Total: len(list), ByStatus: make(map[models.ShipmentStatus]int)}
	for _, sh := range list {
		st.ByStatus[sh.Status]++
		if sh.Status.Active() {
			st.Active++
		}
	}
	return st, nil
}

// --- Creation ---

func (s *Service) CreateShipment(ctx context.Context, actor Actor, req CreateRequest) (*models.Shipment, error) {
	if actor.Role != models.RoleCustomer && actor.Role != models.RoleAdmin {
		return nil, s.fail(OpCreate, "", apperrors.Forbidden("only customers can book shipments"))
	}
	if err := req.Validate(); err != nil {
		return nil, s.fail(OpCreate, "", err)
	}

	var id string
	err := Retry(ctx, s.retry, string(OpCreate), func(ctx context.Context, _ int) error {
		var err error
		id, err = s.repo.NextID(ctx)
		return err
	})
	if err != nil {
		return nil, s.fail(OpCreate, "", err)
	}

	now := s.now()
	sh := models.Shipment{
		ID:              id,
		CustomerID:      actor.ID,
		CustomerName:    firstNonEmpty(req.CustomerName, actor.Name),
		CustomerPhone:   firstNonEmpty(req.CustomerPhone, actor.Phone),
		FromCity:        req.originCity(),
		ToCity:          strings.TrimSpace(req.DestinationCity),
		FromLat:         req.FromLat,
		FromLng:         req.FromLng,
		ToLat:           req.ToLat,
		ToLng:           req.ToLng,
		Price:           Fare(req.pickupType()),
		Description:     strings.TrimSpace(req.ItemName),
		Weight:          req.weightLabel(),
		PickupType:      req.pickupType(),
		PickupAddress:   strings.TrimSpace(req.PickupAddress),
		DeliveryAddress: strings.TrimSpace(req.DestinationAddress),
		RecipientName:   strings.TrimSpace(req.RecipientName),
		RecipientPhone:  strings.TrimSpace(req.RecipientPhone),
		Status:          models.StatusPendingApproval,
		Date:            now.Format("2006-01-02"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	entry := history.NewEntry(models.StatusPendingApproval, now, sh.FromCity, "Shipment created")
	history.Append(&sh, entry)

	start := time.Now()
	err = Retry(ctx, s.retry, string(OpCreate), func(ctx context.Context, attempt int) error {
		err := s.repo.Insert(ctx, &sh)
		if err != nil && attempt > 1 && apperrors.Is(err, apperrors.CodeConflict) {
			// the previous attempt was stored before its reply was lost
			return nil
		}
		return err
	})
	metrics.StoreWriteDuration.WithLabelValues(string(OpCreate)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(OpCreate, id, err)
	}

	s.committed(ctx, sh, "", entry, realtime.EventInsert, nil)
	out := sh.Clone()
	return &out, nil
}

// --- Transitions ---

func (s *Service) ApproveShipment(ctx context.Context, actor Actor, id string) (*models.Shipment, error) {
	return s.transition(ctx, step{
		op:        OpApprove,
		id:        id,
		actor:     actor,
		authorize: requireStaff,
		describe: func(sh models.Shipment) (string, string) {
			return sh.FromCity, "Approved by staff"
		},
	})
}

// AssignAgent is not idempotent under retry: it is only retried when the
// caller passes an idempotency key.
func (s *Service) AssignAgent(ctx context.Context, actor Actor, id, agentName, agentID, idemKey string) (*models.Shipment, error) {
	agentName, agentID = strings.TrimSpace(agentName), strings.TrimSpace(agentID)
	if agentName == "" {
		return nil, s.fail(OpAssign, id, apperrors.Validation("agentName", "Agent name is required"))
	}
	if agentID == "" {
		return nil, s.fail(OpAssign, id, apperrors.Validation("agentId", "Agent id is required"))
	}
	if !actor.staff() {
		return nil, s.fail(OpAssign, id, apperrors.Forbidden("only staff can assign agents"))
	}
	phone, err := s.agentPhone(ctx, agentID)
	if err != nil {
		return nil, s.fail(OpAssign, id, err)
	}

	return s.transition(ctx, step{
		op:      OpAssign,
		id:      id,
		actor:   actor,
		idemKey: idemKey,
		describe: func(sh models.Shipment) (string, string) {
			return sh.FromCity, fmt.Sprintf("Agent %s assigned", agentName)
		},
		mutate: func(_ models.Shipment, p *models.ShipmentPatch) error {
			p.AgentName = &agentName
			p.AgentID = &agentID
			p.AgentPhone = &phone
			return nil
		},
	})
}

func (s *Service) AcceptRequest(ctx context.Context, actor Actor, id string) (*models.Shipment, error) {
	return s.transition(ctx, step{
		op:        OpAccept,
		id:        id,
		actor:     actor,
		authorize: requireAssignedAgent,
		describe: func(sh models.Shipment) (string, string) {
			return sh.FromCity, "Request accepted by agent"
		},
	})
}

func (s *Service) ConfirmPickup(ctx context.Context, actor Actor, id string) (*models.Shipment, error) {
	return s.transition(ctx, step{
		op:        OpPickup,
		id:        id,
		actor:     actor,
		authorize: requireAssignedAgent,
		describe: func(sh models.Shipment) (string, string) {
			return sh.FromCity, "Package picked up by agent"
		},
	})
}

// MarkInTransit seeds the live position from pos, or from the pickup
// coordinates when pos is nil.
func (s *Service) MarkInTransit(ctx context.Context, actor Actor, id string, pos *Position) (*models.Shipment, error) {
	if pos != nil {
		if err := checkPosition(pos.Lat, pos.Lng); err != nil {
			return nil, s.fail(OpInTransit, id, err)
		}
	}
	return s.transition(ctx, step{
		op:        OpInTransit,
		id:        id,
		actor:     actor,
		authorize: requireAssignedAgent,
		describe: func(models.Shipment) (string, string) {
			return history.LocationInTransit, "Package is on the way"
		},
		mutate: func(sh models.Shipment, p *models.ShipmentPatch) error {
			switch {
			case pos != nil:
				lat, lng := pos.Lat, pos.Lng
				p.CurrentLat, p.CurrentLng = &lat, &lng
			case sh.FromLat != nil && sh.FromLng != nil:
				lat, lng := *sh.FromLat, *sh.FromLng
				p.CurrentLat, p.CurrentLng = &lat, &lng
			}
			return nil
		},
	})
}

// MarkDelivered requires the URL of an uploaded delivery photo. Like
// AssignAgent it is only retried under an idempotency key.
func (s *Service) MarkDelivered(ctx context.Context, actor Actor, id, photoURL, idemKey string) (*models.Shipment, error) {
	photoURL = strings.TrimSpace(photoURL)
	if photoURL == "" {
		return nil, s.fail(OpDeliver, id, apperrors.Validation("deliveryPhotoUrl", "Delivery photo is required"))
	}
	return s.transition(ctx, step{
		op:        OpDeliver,
		id:        id,
		actor:     actor,
		idemKey:   idemKey,
		authorize: requireAssignedAgent,
		describe: func(sh models.Shipment) (string, string) {
			return sh.ToCity, "Package delivered to recipient"
		},
		mutate: func(_ models.Shipment, p *models.ShipmentPatch) error {
			p.DeliveryPhotoURL = &photoURL
			return nil
		},
	})
}

// Reject cancels a shipment that has not reached a terminal status.
func (s *Service) Reject(ctx context.Context, actor Actor, id, reason string) (*models.Shipment, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, step{
		op:        OpReject,
		id:        id,
		actor:     actor,
		authorize: requireStaff,
		describe: func(sh models.Shipment) (string, string) {
			if reason == "" {
				return sh.FromCity, "Shipment rejected"
			}
			return sh.FromCity, "Shipment rejected: " + reason
		},
		mutate: func(_ models.Shipment, p *models.ShipmentPatch) error {
			if reason != "" {
				p.RejectionReason = &reason
			}
			return nil
		},
	})
}

// UpdateCurrentLocation overwrites the live position of an in-transit
// shipment. It adds no history entry; the last write wins.
func (s *Service) UpdateCurrentLocation(ctx context.Context, actor Actor, id string, lat, lng float64) error {
	if err := checkPosition(lat, lng); err != nil {
		return s.fail(OpLocation, id, err)
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return s.fail(OpLocation, id, err)
	}
	if current.Status != models.StatusInTransit {
		return s.fail(OpLocation, id, apperrors.InvalidTransition(string(OpLocation), id, string(current.Status), string(models.StatusInTransit)))
	}
	if err := requireAssignedAgent(actor, *current); err != nil {
		return s.fail(OpLocation, id, err)
	}

	now := s.now()
	err = Retry(ctx, s.retry, string(OpLocation), func(ctx context.Context, _ int) error {
		return s.repo.UpdateLocation(ctx, id, lat, lng, now)
	})
	if err != nil {
		return s.fail(OpLocation, id, err)
	}
	metrics.LocationUpdatesTotal.Inc()

	s.publish(ctx, realtime.Event{
		Topic: realtime.ShipmentsTopic,
		Type:  realtime.EventUpdate,
		ID:    id,
		Record: map[string]any{
			"currentLat": lat,
			"currentLng": lng,
			"updated_at": now.UTC().Format(time.RFC3339Nano),
		},
	})
	return nil
}

type step struct {
	op        Operation
	id        string
	actor     Actor
	idemKey   string
	authorize func(Actor, models.Shipment) error
	describe  func(models.Shipment) (location, description string)
	mutate    func(models.Shipment, *models.ShipmentPatch) error
}

func (s *Service) transition(ctx context.Context, st step) (*models.Shipment, error) {
	r := rules[st.op]
	idemKey := ""
	if st.idemKey != "" {
		idemKey = fmt.Sprintf("%s:%s:%s", st.op, st.id, st.idemKey)
		if replay, err := s.replay(ctx, idemKey); err != nil || replay != nil {
			return replay, err
		}
	}

	current, err := s.load(ctx, st.id)
	if err != nil {
		return nil, s.fail(st.op, st.id, err)
	}
	if !r.allows(current.Status) {
		if idemKey != "" && current.Status == r.to && current.RequestKey == idemKey {
			// this key's write committed but its reply was lost
			s.remember(ctx, idemKey, st.id)
			return current, nil
		}
		return nil, s.fail(st.op, st.id, apperrors.InvalidTransition(string(st.op), st.id, string(current.Status), r.allowed()...))
	}
	if st.authorize != nil {
		if err := st.authorize(st.actor, *current); err != nil {
			return nil, s.fail(st.op, st.id, err)
		}
	}

	now := s.now()
	location, description := st.describe(*current)
	entry := history.NewEntry(r.to, now, location, description)
	to := r.to
	patch := models.ShipmentPatch{Status: &to, AppendHistory: &entry, UpdatedAt: now}
	if idemKey != "" {
		patch.RequestKey = &idemKey
	}
	if st.mutate != nil {
		if err := st.mutate(*current, &patch); err != nil {
			return nil, s.fail(st.op, st.id, err)
		}
	}

	reconciled := false
	write := func(ctx context.Context, attempt int) error {
		err := s.repo.Update(ctx, st.id, current.Status, patch)
		if err != nil && attempt > 1 && apperrors.FoundStatus(err) == string(r.to) {
			reconciled = true
			return nil
		}
		return err
	}

	start := time.Now()
	if r.idempotent || idemKey != "" {
		err = Retry(ctx, s.retry, string(st.op), write)
	} else {
		err = write(ctx, 1)
	}
	metrics.StoreWriteDuration.WithLabelValues(string(st.op)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(st.op, st.id, err)
	}

	updated := current.Clone()
	patch.Apply(&updated)
	if reconciled {
		// the target status may also have been reached by another caller
		fresh, err := s.load(ctx, st.id)
		if err != nil {
			return nil, s.fail(st.op, st.id, err)
		}
		if !wroteEntry(*fresh, entry, now, idemKey) {
			return nil, s.fail(st.op, st.id, apperrors.InvalidTransition(string(st.op), st.id, string(fresh.Status), r.allowed()...))
		}
		updated = *fresh
	}

	s.committed(ctx, updated, current.Status, entry, realtime.EventUpdate, patch.Fields(updated))
	if idemKey != "" {
		s.remember(ctx, idemKey, st.id)
	}
	return &updated, nil
}

// wroteEntry reports whether fresh holds the ledger entry written at `at`.
// Stored timestamps may be truncated to milliseconds.
func wroteEntry(fresh models.Shipment, entry models.ShipmentHistory, at time.Time, key string) bool {
	if key != "" && fresh.RequestKey != key {
		return false
	}
	if n := len(fresh.History); n == 0 || fresh.History[n-1] != entry {
		return false
	}
	return fresh.UpdatedAt.Truncate(time.Millisecond).Equal(at.Truncate(time.Millisecond))
}

// committed runs the post-write fan-out. Failures here are logged only: the
// write is already authoritative.
func (s *Service) committed(ctx context.Context, sh models.Shipment, prev models.ShipmentStatus, entry models.ShipmentHistory, typ realtime.EventType, fields map[string]any) {
	metrics.TransitionsTotal.WithLabelValues(string(sh.Status)).Inc()
	s.log.Info("shipment transition committed",
		zap.String("shipment_id", sh.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(sh.Status)),
	)

	if err := s.anchor.Record(ctx, sh.ID, entry); err != nil {
		s.log.Warn("history anchor failed", zap.String("shipment_id", sh.ID), zap.Error(err))
	}

	var ev realtime.Event
	if typ == realtime.EventInsert {
		var err error
		ev, err = realtime.NewEvent(realtime.ShipmentsTopic, typ, sh.ID, sh)
		if err != nil {
			s.log.Error("encode shipment event", zap.String("shipment_id", sh.ID), zap.Error(err))
		}
	} else {
		ev = realtime.Event{Topic: realtime.ShipmentsTopic, Type: typ, ID: sh.ID, Record: fields}
	}
	if ev.Topic != "" {
		s.publish(ctx, ev)
	}

	s.notifier.ShipmentChanged(ctx, sh, prev)
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish shipment event", zap.String("shipment_id", ev.ID), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.Shipment, error) {
	var sh *models.Shipment
	err := Retry(ctx, s.retry, "get", func(ctx context.Context, _ int) error {
		var err error
		sh, err = s.repo.Get(ctx, id)
		return err
	})
	return sh, err
}

func (s *Service) replay(ctx context.Context, key string) (*models.Shipment, error) {
	id, found, err := s.idem.Lookup(ctx, key)
	if err != nil {
		s.log.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}
	return s.load(ctx, id)
}

func (s *Service) remember(ctx context.Context, key, id string) {
	if err := s.idem.Remember(ctx, key, id); err != nil {
		s.log.Warn("idempotency remember failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) agentPhone(ctx context.Context, agentID string) (string, error) {
	if s.profiles == nil {
		return "", nil
	}
	p, err := s.profiles.Get(ctx, agentID)
	if apperrors.IsNotFound(err) {
		return "", apperrors.Validation("agentId", "unknown agent "+agentID)
	}
	if err != nil {
		return "", err
	}
	if p.Role != models.RoleAgent {
		return "", apperrors.Validation("agentId", agentID+" is not an agent")
	}
	return p.Phone, nil
}

func (s *Service) fail(op Operation, id string, err error) error {
	code := apperrors.CodeOf(err)
	if code == "" {
		code = "UNKNOWN"
	}
	metrics.TransitionFailuresTotal.WithLabelValues(string(op), string(code)).Inc()
	s.log.Debug("shipment operation rejected",
		zap.String("operation", string(op)),
		zap.String("shipment_id", id),
		zap.Error(err),
	)
	return err
}

func requireStaff(a Actor, _ models.Shipment) error {
	if !a.staff() {
		return apperrors.Forbidden("staff or admin role required")
	}
	return nil
}

func requireAssignedAgent(a Actor, sh models.Shipment) error {
	if a.Role == models.RoleAdmin {
		return nil
	}
	if a.Role != models.RoleAgent || sh.AgentID != a.ID {
		return apperrors.Forbidden("shipment " + sh.ID + " is not assigned to you")
	}
	return nil
}

func canView(a Actor, sh models.Shipment) error {
	switch a.Role {
	case models.RoleStaff, models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if sh.CustomerID == a.ID {
			return nil
		}
	case models.RoleAgent:
		if sh.AgentID == a.ID {
			return nil
		}
	}
	return apperrors.Forbidden("you cannot view shipment " + sh.ID)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
