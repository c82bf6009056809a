package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"leads-dashboard/internal/cache"
	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/instrument"
)

// FieldLister lists a company's field definitions in column order.
type FieldLister interface {
	List(ctx context.Context, companyID string) ([]fields.Definition, error)
}

// LeadLister lists a company's leads, newest first.
type LeadLister interface {
	ListLeads(ctx context.Context, companyID string) ([]Lead, error)
}

// Snapshot is everything the leads and overview views read for a company.
type Snapshot struct {
	CompanyID  string              `json:"company_id"`
	Generation uint64              `json:"generation"`
	Leads      []Lead              `json:"leads"`
	Fields     []fields.Definition `json:"fields"`
	LoadedAt   time.Time           `json:"loaded_at"`
}

// SnapshotLoader loads leads and field definitions together and caches the
// result per company. Every mutation bumps the company's generation; a load
// that finishes after a newer generation was issued is returned to its
// caller but never cached. The generation is a counter in the cache itself,
// so with the redis driver every server and leadsctl agree on it.
type SnapshotLoader struct {
	leads  LeadLister
	fields FieldLister
	cache  cache.Cache
	ttl    time.Duration

	group singleflight.Group
}

// NewSnapshotLoader returns a loader. A nil cache disables caching.
func NewSnapshotLoader(leads LeadLister, defs FieldLister, c cache.Cache, ttl time.Duration) *SnapshotLoader {
	return &SnapshotLoader{
		leads:  leads,
		fields: defs,
		cache:  c,
		ttl:    ttl,
	}
}

// Generation returns the current generation for the company.
func (s *SnapshotLoader) Generation(ctx context.Context, companyID string) (uint64, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.Counter(ctx, generationKey(companyID))
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Invalidate marks every earlier snapshot of the company as stale.
func (s *SnapshotLoader) Invalidate(ctx context.Context, companyID string) error {
	if s.cache == nil {
		return nil
	}
	n, err := s.cache.Incr(ctx, generationKey(companyID))
	if err != nil {
		return fmt.Errorf("invalidate snapshot %s: %w", companyID, err)
	}
	s.cache.Delete(ctx, snapshotKey(companyID, uint64(n-1)))
	return nil
}

func generationKey(companyID string) string {
	return "snapshot-gen:" + companyID
}

func snapshotKey(companyID string, gen uint64) string {
	return fmt.Sprintf("snapshot:%s:%d", companyID, gen)
}

// Load returns the company's snapshot, from cache when a current one exists.
// When the generation cannot be read the data is fetched and not cached.
func (s *SnapshotLoader) Load(ctx context.Context, companyID string) (*Snapshot, error) {
	gen, err := s.Generation(ctx, companyID)
	if err != nil {
		log.Printf("WARN: snapshot cache bypassed for %s: %v", companyID, err)
		snap, err := s.fetch(ctx, companyID, 0)
		if err != nil {
			instrument.RecordSnapshot("error")
			return nil, err
		}
		instrument.RecordSnapshot("bypass")
		return snap, nil
	}
	key := snapshotKey(companyID, gen)

	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, key); ok {
			var snap Snapshot
			if err := json.Unmarshal(b, &snap); err == nil {
				instrument.RecordSnapshot("hit")
				return &snap, nil
			}
			log.Printf("WARN: discarding undecodable snapshot %s", key)
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, companyID, gen)
	})
	if err != nil {
		instrument.RecordSnapshot("error")
		return nil, err
	}
	snap := v.(*Snapshot)

	if now, err := s.Generation(ctx, companyID); err != nil || now != gen {
		instrument.RecordSnapshot("stale")
		return snap, nil
	}
	instrument.RecordSnapshot("miss")
	if s.cache != nil && s.ttl > 0 {
		if b, err := json.Marshal(snap); err == nil {
			s.cache.Set(ctx, key, b, s.ttl)
		} else {
			log.Printf("ERROR: encode snapshot %s: %v", key, err)
		}
	}
	return snap, nil
}

func (s *SnapshotLoader) fetch(ctx context.Context, companyID string, gen uint64) (_ *Snapshot, err error) {
	ctx, span := instrument.Start(ctx, "records", "snapshot.fetch")
	span.SetMetadata("generation", gen)
	defer func() { span.EndWith(err) }()

	snap := &Snapshot{CompanyID: companyID, Generation: gen}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		leads, err := s.leads.ListLeads(gctx, companyID)
		snap.Leads = leads
		return err
	})
	g.Go(func() error {
		defs, err := s.fields.List(gctx, companyID)
		snap.Fields = defs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	span.SetMetadata("leads", len(snap.Leads))
	span.SetMetadata("fields", len(snap.Fields))
	snap.LoadedAt = time.Now().UTC()
	return snap, nil
}
