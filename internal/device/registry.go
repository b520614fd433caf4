package device

import (
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the coordinator's table of last-known device state.
//
// Writers are serialised by a mutex and every patch is merged all or
// nothing, so readers never see a partially applied update. Records handed
// out are copies; callers can safely modify them.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // first-registration order

	onChange func(Record)
	notifyMu sync.Mutex // orders onChange calls by commit
	logger   Logger
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		logger:  noopLogger{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetOnChange registers fn to receive every merged record. It is called
// after the registry lock is released, one call at a time and in commit
// order. fn must not call Upsert.
func (r *Registry) SetOnChange(fn func(Record)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Upsert merges p into the record with the same ID, creating it if needed,
// and returns the merged record.
//
// A new record needs a subtype; its kind follows from the subtype. A patch
// that names a different kind or subtype from the registered one returns
// ErrClassChanged and nothing from it is applied.
func (r *Registry) Upsert(p Patch) (Record, error) {
	if err := ValidatePatch(p); err != nil {
		return Record{}, err
	}

	r.mu.Lock()
	existing, ok := r.records[p.ID]

	var next Record
	if ok {
		if (p.Subtype != "" && p.Subtype != existing.Subtype) || (p.Kind != "" && p.Kind != existing.Kind) {
			r.mu.Unlock()
			return Record{}, fmt.Errorf("%w: %s is %s/%s", ErrClassChanged, p.ID, existing.Kind, existing.Subtype)
		}
		next = existing.Clone()
	} else {
		if p.Subtype == "" {
			r.mu.Unlock()
			return Record{}, fmt.Errorf("%w: subtype required to register %s", ErrInvalidRecord, p.ID)
		}
		next = Record{ID: p.ID, Kind: p.Subtype.Kind(), Subtype: p.Subtype}
	}

	if err := checkState(next.Subtype, p.State); err != nil {
		r.mu.Unlock()
		return Record{}, err
	}
	merge(&next, p)
	next.Revision++
	if p.Timestamp.IsZero() {
		next.LastUpdated = r.now()
	} else {
		next.LastUpdated = p.Timestamp.UTC()
	}

	stored := next.Clone()
	r.records[p.ID] = &stored
	if !ok {
		r.order = append(r.order, p.ID)
	}
	onChange := r.onChange
	if onChange != nil {
		// Taken before r.mu is released so a later commit cannot notify first.
		r.notifyMu.Lock()
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("device updated", "id", next.ID, "state", next.State)
	} else {
		r.logger.Info("device registered", "id", next.ID, "kind", next.Kind, "subtype", next.Subtype)
	}

	if onChange != nil {
		func() {
			defer r.notifyMu.Unlock()
			onChange(next.Clone())
		}()
	}
	return next, nil
}

// merge copies every set field of p onto rec.
func merge(rec *Record, p Patch) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.State != nil {
		rec.State = *p.State
	}
	if p.Temperature != nil {
		rec.Temperature = cloneFloat(p.Temperature)
	}
	if p.Luminosity != nil {
		rec.Luminosity = cloneFloat(p.Luminosity)
	}
	if p.Brightness != nil {
		rec.Brightness = cloneFloat(p.Brightness)
	}
	if p.RelatedDeviceID != nil {
		rec.RelatedDeviceID = *p.RelatedDeviceID
	}
	if p.Endpoint != nil {
		ep := *p.Endpoint
		rec.Endpoint = &ep
	}
}

// Get returns the record for id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Lookup is Get with an error for callers that propagate one.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Lookup(id string) (Record, error) {
	rec, ok := r.Get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return rec, nil
}

// All returns a consistent snapshot of every record in first-registration
// order.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].Clone())
	}
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
